package nightly

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FeedTarget pairs a local filename with the remote URL it comes from.
type FeedTarget struct {
	Fname string
	URL   string
}

// Downloader keeps local copies of feed files current over http or ftp.
// It does no ETL; it grabs files and records downloads in the activity
// log, which later runs consult to avoid re-fetching.
type Downloader struct {
	datadir string
	store   *Store
	tag     string
	logger  *log.Logger
	client  *http.Client
}

// NewDownloader builds a downloader that saves into datadir and logs
// download events to store under the given activity category.
func NewDownloader(datadir string, store *Store, tag string, logger *log.Logger) *Downloader {
	if tag == "" {
		tag = "etl-download"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{
		datadir: datadir,
		store:   store,
		tag:     tag,
		logger:  logger,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Download fetches each target whose on-disk copy is stale. It returns the
// filenames actually downloaded.
func (d *Downloader) Download(targets []FeedTarget, checkLog bool) ([]string, error) {
	var downloaded []string
	for _, t := range targets {
		fetched, err := d.DownloadIfStale(t.Fname, t.URL, checkLog)
		if err != nil {
			return downloaded, err
		}
		if !fetched {
			d.logger.Printf("not stale: %s", t.Fname)
			continue
		}
		if err := d.store.Log(d.tag, "Downloaded "+filepath.Base(t.Fname)); err != nil {
			return downloaded, err
		}
		downloaded = append(downloaded, t.Fname)
	}
	return downloaded, nil
}

// DownloadIfStale fetches url into fname unless the on-disk copy is still
// current. It reports whether a fetch happened.
func (d *Downloader) DownloadIfStale(fname, rawurl string, checkLog bool) (bool, error) {
	stale, err := d.fnameIsStale(fname, rawurl, checkLog)
	if err != nil || !stale {
		return false, err
	}

	d.logger.Printf("Downloading %s from %s", fname, rawurl)
	if strings.HasPrefix(rawurl, "ftp://") {
		return d.fetchFTP(fname, rawurl)
	}
	return d.fetchHTTP(fname, rawurl)
}

// fnameIsStale decides whether fname needs re-downloading: a missing file
// always does; a file the activity log already records as downloaded never
// does (when checkLog is set); otherwise the remote side's size and mod
// time settle it.
func (d *Downloader) fnameIsStale(fname, rawurl string, checkLog bool) (bool, error) {
	if _, err := os.Stat(fname); err != nil {
		return true, nil
	}

	if checkLog {
		last, err := d.store.DownloadTime(filepath.Base(fname))
		if err != nil {
			return false, err
		}
		if last != nil {
			return false, nil
		}
	}

	var stale bool
	var err error
	if strings.HasPrefix(rawurl, "ftp://") {
		stale, err = d.staleFTP(fname, rawurl)
	} else {
		stale, err = d.staleHTTP(fname, rawurl)
	}
	if err != nil {
		return false, err
	}

	if !stale {
		if err := d.store.Log(d.tag, "Downloaded "+filepath.Base(fname)); err != nil {
			return false, err
		}
	}
	return stale, nil
}

func (d *Downloader) staleHTTP(fname, rawurl string) (bool, error) {
	resp, err := d.client.Head(rawurl)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.logger.Printf("warning: can't get head information about %s", rawurl)
		return false, nil
	}

	fi, err := os.Stat(fname)
	if err != nil {
		return false, err
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return false, fmt.Errorf("head %s: bad Content-Length: %w", rawurl, err)
	}
	if size != fi.Size() {
		d.logger.Printf("warning: size differs from that on disk, file %s is stale", fname)
		return true, nil
	}

	lastMod, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		return false, fmt.Errorf("head %s: bad Last-Modified: %w", rawurl, err)
	}
	if lastMod.After(fi.ModTime()) {
		return true, nil
	}

	// A confirmed-current file is recorded as downloaded at its own mtime.
	if err := d.store.LogAt(d.tag, "Downloaded "+filepath.Base(fname), fi.ModTime()); err != nil {
		return false, err
	}
	return false, nil
}

func (d *Downloader) staleFTP(fname, rawurl string) (bool, error) {
	conn, remotePath, err := d.dialFTP(rawurl)
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	fi, err := os.Stat(fname)
	if err != nil {
		return false, err
	}
	size, err := conn.FileSize(remotePath)
	if err != nil {
		return false, err
	}
	if size != fi.Size() {
		d.logger.Printf("warning: size differs from that on disk, file %s is stale", fname)
		return true, nil
	}

	modTime, err := conn.GetTime(remotePath)
	if err != nil {
		return false, err
	}
	return modTime.After(fi.ModTime()), nil
}

func (d *Downloader) fetchHTTP(fname, rawurl string) (bool, error) {
	resp, err := d.client.Get(rawurl)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Printf("warning: fetching %s returned status code %d, discarding result", rawurl, resp.StatusCode)
		return false, nil
	}
	// Some feed mirrors forward missing files to a 404 page instead of
	// failing the request.
	if resp.Request != nil && strings.Contains(resp.Request.URL.String(), "404") {
		d.logger.Printf("warning: file not found: %s", rawurl)
		return false, nil
	}

	out, err := os.Create(fname)
	if err != nil {
		return false, err
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(fname)
		return false, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(fname)
		return false, closeErr
	}

	if want := resp.Header.Get("Content-Length"); want != "" {
		size, err := strconv.ParseInt(want, 10, 64)
		if err == nil && size != n {
			_ = os.Remove(fname)
			return false, fmt.Errorf("downloaded %d bytes of %s, expected %d", n, rawurl, size)
		}
	}
	return true, nil
}

func (d *Downloader) fetchFTP(fname, rawurl string) (bool, error) {
	conn, remotePath, err := d.dialFTP(rawurl)
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return false, err
	}
	defer resp.Close()

	out, err := os.Create(fname)
	if err != nil {
		return false, err
	}
	_, copyErr := io.Copy(out, resp)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(fname)
		return false, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(fname)
		return false, closeErr
	}
	return true, nil
}

func (d *Downloader) dialFTP(rawurl string) (*ftp.ServerConn, string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, "", err
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, "", err
	}
	if err := conn.Login("anonymous", "anonymous"); err != nil {
		_ = conn.Quit()
		return nil, "", err
	}
	return conn, strings.TrimPrefix(u.Path, "/"), nil
}

// FeedTargets lists the recent nightly files worth considering: starting
// with yesterday's feed (or one day further back when running ahead of the
// 17:00 drop), going back far enough to chew through the backlog, and
// skipping dates whose ".sql" marker shows the download was already
// processed.
func FeedTargets(datadir string) ([]FeedTarget, error) {
	return feedTargetsAt(datadir, time.Now())
}

func feedTargetsAt(datadir string, now time.Time) ([]FeedTarget, error) {
	entries, err := os.ReadDir(datadir)
	if err != nil {
		return nil, err
	}
	back := 1
	if now.Hour() < 17 {
		back++
	}
	maxBack := len(entries) + 2

	var targets []FeedTarget
	for ; back < maxBack; back++ {
		day := now.AddDate(0, 0, -back)
		fname := filepath.Join(datadir, feedName(day))
		if _, err := os.Stat(fname + ".sql"); err == nil {
			continue
		}
		targets = append(targets, FeedTarget{Fname: fname, URL: feedURL(day)})
	}
	return targets, nil
}

func feedName(day time.Time) string {
	return fmt.Sprintf("FBOFeed%d%02d%02d", day.Year(), int(day.Month()), day.Day())
}

func feedURL(day time.Time) string {
	return "ftp://ftp.fbo.gov/" + feedName(day)
}
