// Package updater tells a running deebo whether a newer release exists.
//
// It asks the GitHub Releases API for the latest tag of the project and
// compares it with the build version. Installing the release is left to
// whatever installed deebo in the first place.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Repo is the GitHub repository releases are published to.
	Repo = "snagasuri/deebo-prototype"

	defaultEndpoint = "https://api.github.com/repos/" + Repo + "/releases/latest"
	checkTimeout    = 10 * time.Second
)

// Release holds the fields deebo reads from a GitHub release.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Result describes how the running build compares to the latest release.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

// Notice is the one-line message printed when an update exists.
func (r Result) Notice() string {
	if !r.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("deebo v%s is available (running v%s): %s", r.LatestVersion, r.CurrentVersion, r.ReleaseURL)
}

// Checker queries a release endpoint.
type Checker struct {
	Endpoint string
	Client   *http.Client
}

// NewChecker returns a Checker for the public GitHub endpoint.
func NewChecker() *Checker {
	return &Checker{Endpoint: defaultEndpoint, Client: &http.Client{Timeout: checkTimeout}}
}

// Check compares current with the latest release. Development builds
// ("dev" or empty) never report an update.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{CurrentVersion: normalizeVersion(current)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "deebo/"+res.CurrentVersion)

	resp, err := c.Client.Do(req)
	if err != nil {
		return res, fmt.Errorf("fetching latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("fetching latest release: %s", resp.Status)
	}
	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return res, fmt.Errorf("decoding release: %w", err)
	}

	res.LatestVersion = normalizeVersion(rel.TagName)
	res.ReleaseURL = rel.HTMLURL
	res.UpdateAvailable = isNewer(res.CurrentVersion, res.LatestVersion)
	return res, nil
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewer reports whether latest is a higher major.minor.patch than
// current. Pre-release and build suffixes are ignored.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}
	c, l := versionParts(current), versionParts(latest)
	for i := range c {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func versionParts(v string) [3]int {
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}
