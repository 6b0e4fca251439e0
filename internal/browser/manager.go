package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"quotepilot/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// stealthScript strips the fingerprints carrier sites probe for. It must run
// before any page script, so it is installed as an on-new-document script.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
if (!window.chrome) { window.chrome = { runtime: {} }; }
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`

// SessionKey builds the composite key isolating one carrier's cookies and
// storage from every other carrier working the same task.
func SessionKey(taskID, carrierID string) string {
	return taskID + "_" + carrierID
}

// Manager owns the shared Chrome instance and hands out one isolated
// session per key. Sessions are created lazily and replaced transparently
// when their page is found closed or unresponsive.
type Manager struct {
	cfg        config.BrowserConfig
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	sessions   map[string]*Session
}

func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
// Safe to call again after a browser crash; stale connections are replaced.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("stale browser connection detected, reconnecting...")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*Session)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	log.Printf("browser connected at %s", controlURL)
	return nil
}

// Session returns the live session for a key, creating or reviving it as
// needed. A poisoned page is replaced and its last known good URL restored
// before the session is handed back; callers never see the swap.
func (m *Manager) Session(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{
			Key:        key,
			mgr:        m,
			spawn:      m.newPage,
			navTimeout: m.cfg.NavigationTimeout(),
			created:    time.Now(),
		}
		m.sessions[key] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver exposes a session through the capability interface the carrier
// flows consume.
func (m *Manager) Driver(ctx context.Context, key string) (Driver, error) {
	return m.Session(ctx, key)
}

// pageHandle is the slice of page behavior session recovery depends on.
// rodHandle wraps the live CDP page; tests substitute fakes so the
// poisoned-page replacement path can run without a Chrome binary.
type pageHandle interface {
	// Probe checks the page still answers within the timeout.
	Probe(timeout time.Duration) error
	// Goto navigates and waits for the load event.
	Goto(url string, timeout time.Duration) error
	// URL reports the page's current location.
	URL() (string, error)
	Close() error
	// Page exposes the underlying CDP page for action closures.
	Page() *rod.Page
}

type rodHandle struct {
	page *rod.Page
}

func (h *rodHandle) Probe(timeout time.Duration) error {
	_, err := h.page.Timeout(timeout).Eval(`() => true`)
	return err
}

func (h *rodHandle) Goto(url string, timeout time.Duration) error {
	if err := h.page.Timeout(timeout).Navigate(url); err != nil {
		return err
	}
	return h.page.Timeout(timeout).WaitLoad()
}

func (h *rodHandle) URL() (string, error) {
	info, err := h.page.Info()
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", errors.New("no page info")
	}
	return info.URL, nil
}

func (h *rodHandle) Close() error { return h.page.Close() }

func (h *rodHandle) Page() *rod.Page { return h.page }

// newPage opens a fresh incognito page with the configured viewport and the
// stealth script installed before any carrier script can run.
func (m *Manager) newPage(ctx context.Context) (pageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(ctx); err != nil {
		return nil, err
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if m.cfg.IsStealth() {
		if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: stealthScript}).Call(page); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("install stealth script: %w", err)
		}
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	return &rodHandle{page: page}, nil
}

// CloseSession tears down a single session. Missing keys are not an error.
func (m *Manager) CloseSession(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
}

// CloseTask tears down every session belonging to a task.
func (m *Manager) CloseTask(taskID string) {
	prefix := taskID + "_"

	m.mu.Lock()
	keys := make([]string, 0, 2)
	for key := range m.sessions {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.CloseSession(key)
	}
}

// Shutdown closes tracked pages and the underlying browser.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	browser := m.browser
	m.browser = nil
	m.controlURL = ""
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.page != nil {
			_ = s.page.Close()
			s.page = nil
		}
		s.mu.Unlock()
	}

	var err error
	if browser != nil {
		err = browser.Close()
	}
	log.Printf("browser shutdown complete")
	return err
}

// Session is one isolated browser context + page bound to a task x carrier
// pair. All actions serialize on the session's mutex; the last known good URL
// is written by every successful action and read only during recovery.
type Session struct {
	Key string

	mgr        *Manager
	spawn      func(ctx context.Context) (pageHandle, error)
	navTimeout time.Duration
	created    time.Time

	mu      sync.Mutex
	page    pageHandle
	lastURL string
}

// LastURL reports the most recent URL a successful action observed.
func (s *Session) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

// ensureLocked returns a healthy page, creating or reviving one if the
// current handle is closed or unresponsive. Caller must hold s.mu.
func (s *Session) ensureLocked(ctx context.Context) (pageHandle, error) {
	if s.page != nil {
		err := s.page.Probe(2 * time.Second)
		if err == nil {
			return s.page, nil
		}
		log.Printf("[session:%s] poisoned page detected (%v), replacing", s.Key, err)
	}
	return s.recoverLocked(ctx)
}

// recoverLocked discards the current page, opens a fresh one and restores the
// last known good URL. Caller must hold s.mu.
func (s *Session) recoverLocked(ctx context.Context) (pageHandle, error) {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}

	page, err := s.spawn(ctx)
	if err != nil {
		return nil, fmt.Errorf("recreate session %s: %w", s.Key, err)
	}
	s.page = page

	if s.lastURL != "" {
		if err := page.Goto(s.lastURL, s.navTimeout); err != nil {
			log.Printf("[session:%s] restore %s failed: %v", s.Key, s.lastURL, err)
		} else {
			log.Printf("[session:%s] restored %s after recovery", s.Key, s.lastURL)
		}
	}
	return page, nil
}

// noteURLLocked records the page's current URL as last known good.
// Caller must hold s.mu.
func (s *Session) noteURLLocked(page pageHandle) {
	url, err := page.URL()
	if err != nil {
		return
	}
	if url != "" && url != "about:blank" {
		s.lastURL = url
	}
}

// isPoisonedErr reports whether an action failure means the page handle
// itself is dead, as opposed to an element or timing problem.
func isPoisonedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"target closed",
		"session closed",
		"page closed",
		"context was destroyed",
		"websocket: close",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
