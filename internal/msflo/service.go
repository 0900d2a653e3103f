// Package msflo submits reduced feature lists to the MS-FLO curation
// service, collects its result, and prepares the curated list for single
// point quantification.
package msflo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/config"
	"github.com/524D/msdialtools/internal/table"
)

// Service curates a feature list and returns the path of the curated
// file.
type Service interface {
	Curate(ctx context.Context, path string) (string, error)
}

// Submitter hands a file to the curation service. The returned Closer
// releases the session once the result has been collected.
type Submitter interface {
	Submit(ctx context.Context, path string) (io.Closer, error)
}

// ProcessedSuffix is appended by MS-FLO to the stem of the submitted file.
const ProcessedSuffix = "_processed.txt"

var ErrNoResult = errors.New("curation result not found in archive")

var ErrBrowserLaunch = errors.New("browser could not be started")

// DownloadService submits a file and waits for the service to deliver
// "<stem>.zip" into Downloads. The archive is unpacked next to the
// submitted file.
type DownloadService struct {
	Submitter Submitter
	Downloads string // empty means the directory of the submitted file
	Logger    *zap.Logger
}

// ProcessedPath is the curated file MS-FLO produces for path.
func ProcessedPath(path string) string {
	return table.SiblingPath(path, "", ProcessedSuffix)
}

// Curate implements Service.
func (s *DownloadService) Curate(ctx context.Context, path string) (string, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	downloads := s.Downloads
	if downloads == "" {
		downloads = filepath.Dir(path)
	}
	archive := filepath.Join(downloads, table.Stem(path)+".zip")
	processed := ProcessedPath(path)
	for _, p := range []string{archive, processed} {
		if exists(p) {
			return "", &table.ExistsError{Path: p}
		}
	}

	session, err := s.Submitter.Submit(ctx, path)
	if err != nil {
		return "", err
	}
	log.Info("file submitted, waiting for result", zap.String("file", path), zap.String("archive", archive))
	err = WaitForFile(ctx, archive, log)
	if cerr := session.Close(); cerr != nil {
		log.Warn("closing curation session", zap.Error(cerr))
	}
	if err != nil {
		return "", err
	}

	files, err := Unzip(archive, filepath.Dir(path))
	if err != nil {
		return "", err
	}
	log.Info("result unpacked", zap.Strings("files", files))
	if !exists(processed) {
		return "", fmt.Errorf("%s: %w: %s", archive, ErrNoResult, filepath.Base(processed))
	}
	return processed, nil
}

// BrowserSubmitter fills in the MS-FLO web form in a Chromium browser
// driven over the DevTools protocol.
type BrowserSubmitter struct {
	URL         string
	Browser     string // browser binary, empty to use or download the default
	Headless    bool
	Downloads   string
	Steps       []config.Step
	StepTimeout time.Duration
	Logger      *zap.Logger
}

// NewBrowserSubmitter configures a submitter from the msflo settings.
func NewBrowserSubmitter(c config.MSFLO, log *zap.Logger) *BrowserSubmitter {
	return &BrowserSubmitter{
		URL:         c.URL,
		Browser:     c.Browser,
		Headless:    c.Headless,
		Downloads:   c.Downloads,
		Steps:       c.Steps,
		StepTimeout: time.Minute,
		Logger:      log,
	}
}

type browserSession struct {
	browser *rod.Browser
	launch  *launcher.Launcher
}

func (s *browserSession) Close() error {
	err := s.browser.Close()
	if err != nil {
		s.launch.Kill()
	}
	s.launch.Cleanup()
	return err
}

// Submit implements Submitter. The browser stays open until the returned
// session is closed, so the download can complete.
func (b *BrowserSubmitter) Submit(ctx context.Context, path string) (io.Closer, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	file, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	downloads := b.Downloads
	if downloads == "" {
		downloads = filepath.Dir(file)
	}
	if downloads, err = filepath.Abs(downloads); err != nil {
		return nil, err
	}
	if fi, err := os.Stat(downloads); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("download directory %s is not a directory", downloads)
	}

	l := launcher.New().Context(ctx).Headless(b.Headless)
	if b.Browser != "" {
		l = l.Bin(b.Browser)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("%w: connect: %v", ErrBrowserLaunch, err)
	}
	session := &browserSession{browser: browser, launch: l}

	if err := b.fill(browser, file, downloads, log); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func (b *BrowserSubmitter) fill(browser *rod.Browser, file, downloads string, log *zap.Logger) error {
	err := proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: downloads,
	}.Call(browser)
	if err != nil {
		return fmt.Errorf("set download directory: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: b.URL})
	if err != nil {
		return fmt.Errorf("open %s: %w", b.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", b.URL, err)
	}

	for i, s := range b.Steps {
		el, err := page.Timeout(b.StepTimeout).ElementX(s.XPath)
		if err != nil {
			return fmt.Errorf("step %d (%s): element %s: %w", i+1, s.Name, s.XPath, err)
		}
		switch s.Action {
		case config.ActionClick, config.ActionSubmit:
			err = el.Click(proto.InputMouseButtonLeft, 1)
		case config.ActionInput:
			err = el.Input(s.Value)
		case config.ActionUpload:
			err = el.SetFiles([]string{file})
		default:
			err = fmt.Errorf("unknown action %q", s.Action)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Name, err)
		}
		log.Debug("form step done", zap.Int("step", i+1), zap.String("name", s.Name), zap.String("action", s.Action))
	}
	return nil
}
