// internal/cookiejar/cookiejar.go

// Package cookiejar persists browser session cookies as JSON so later runs
// can restore an authenticated session without the interactive login.
package cookiejar

import (
	"fmt"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/automation"
)

// Record is one persisted cookie. The JSON keys match what the browser
// context reports, so jars written by earlier generations of the tool load
// unchanged.
type Record struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FromBrowser converts the cookies reported by a browser context into
// persistable records.
func FromBrowser(cookies []playwright.Cookie) []Record {
	records := make([]Record, 0, len(cookies))
	for _, c := range cookies {
		r := Record{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			r.SameSite = string(*c.SameSite)
		}
		records = append(records, r)
	}
	return records
}

// Optional converts the record into the shape AddCookies accepts.
func (r Record) Optional() playwright.OptionalCookie {
	return playwright.OptionalCookie{
		Name:     r.Name,
		Value:    r.Value,
		Domain:   playwright.String(r.Domain),
		Path:     playwright.String(r.Path),
		Expires:  playwright.Float(r.Expires),
		HttpOnly: playwright.Bool(r.HTTPOnly),
		Secure:   playwright.Bool(r.Secure),
		SameSite: sameSiteAttribute(r.SameSite),
	}
}

// sameSiteAttribute maps a stored sameSite string onto the driver enum. An
// unknown or empty value maps to nil so the browser applies its default.
func sameSiteAttribute(value string) *playwright.SameSiteAttribute {
	switch strings.ToLower(value) {
	case "strict":
		return playwright.SameSiteAttributeStrict
	case "lax":
		return playwright.SameSiteAttributeLax
	case "none":
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}

// Jar reads and writes cookie records at a fixed path through an afero
// filesystem, which tests swap for an in-memory one.
type Jar struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
}

// NewJar builds a jar over the given filesystem. The path must already be
// expanded; configuration loading handles the home shorthand.
func NewJar(fs afero.Fs, path string, logger *zap.Logger) *Jar {
	return &Jar{fs: fs, path: path, logger: logger.Named("cookiejar")}
}

// Path returns the backing file location.
func (j *Jar) Path() string {
	return j.path
}

// Load reads and decodes every record in the jar.
func (j *Jar) Load() ([]Record, error) {
	raw, err := afero.ReadFile(j.fs, j.path)
	if err != nil {
		return nil, automation.IOFailed(fmt.Sprintf("read cookie jar %s", j.path), err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, automation.IOFailed(fmt.Sprintf("decode cookie jar %s", j.path), err)
	}

	j.logger.Debug("Loaded cookie jar.", zap.Int("cookies", len(records)), zap.String("path", j.path))
	return records, nil
}

// Save writes the records atomically: encode to a sibling temp file, then
// rename over the target. The jar holds credentials and is not group or
// world readable.
func (j *Jar) Save(records []Record) error {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return automation.IOFailed("encode cookie jar", err)
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := j.fs.MkdirAll(dir, 0o700); err != nil {
			return automation.IOFailed(fmt.Sprintf("create cookie jar directory %s", dir), err)
		}
	}

	tmp := j.path + ".tmp"
	if err := afero.WriteFile(j.fs, tmp, payload, 0o600); err != nil {
		return automation.IOFailed(fmt.Sprintf("write cookie jar %s", tmp), err)
	}
	if err := j.fs.Rename(tmp, j.path); err != nil {
		return automation.IOFailed(fmt.Sprintf("replace cookie jar %s", j.path), err)
	}

	j.logger.Info("Saved session cookies.", zap.Int("cookies", len(records)), zap.String("path", j.path))
	return nil
}
