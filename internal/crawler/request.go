package crawler

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid crawler request")

var (
	Platforms    = []string{"xhs", "dy", "ks", "bili", "wb", "tieba", "zhihu"}
	CrawlerTypes = []string{"search", "detail", "creator", "login"}
	LoginTypes   = []string{"qrcode", "phone", "cookie"}
	SaveOptions  = []string{"json", "csv", "db", "sqlite"}
)

// StartRequest is a crawl job as submitted over the API.
type StartRequest struct {
	Platform       string `json:"platform"`
	CrawlerType    string `json:"crawlerType"`
	Keywords       string `json:"keywords,omitempty"`
	SpecifiedIDs   string `json:"specifiedIds,omitempty"`
	CreatorIDs     string `json:"creatorIds,omitempty"`
	LoginType      string `json:"loginType,omitempty"`
	Cookies        string `json:"cookies,omitempty"`
	SaveOption     string `json:"saveOption,omitempty"`
	StartPage      int    `json:"startPage,omitempty"`
	CrawlCount     int    `json:"crawlCount,omitempty"`
	EnableComments *bool  `json:"enableComments,omitempty"`
	Headless       bool   `json:"headless"`
	ClientJobID    string `json:"clientJobId,omitempty"`
}

// Normalize fills defaults and validates the request.
func (r *StartRequest) Normalize() error {
	r.Platform = strings.TrimSpace(r.Platform)
	if !slices.Contains(Platforms, r.Platform) {
		return fmt.Errorf("%w: unsupported platform %q", ErrInvalidRequest, r.Platform)
	}
	if r.CrawlerType == "" {
		r.CrawlerType = "search"
	}
	if !slices.Contains(CrawlerTypes, r.CrawlerType) {
		return fmt.Errorf("%w: unsupported crawler type %q", ErrInvalidRequest, r.CrawlerType)
	}
	if r.LoginType == "" {
		r.LoginType = "qrcode"
	}
	if !slices.Contains(LoginTypes, r.LoginType) {
		return fmt.Errorf("%w: unsupported login type %q", ErrInvalidRequest, r.LoginType)
	}
	if r.SaveOption == "" {
		r.SaveOption = "json"
	}
	if !slices.Contains(SaveOptions, r.SaveOption) {
		return fmt.Errorf("%w: unsupported save option %q", ErrInvalidRequest, r.SaveOption)
	}
	if r.StartPage < 0 || r.CrawlCount < 0 {
		return fmt.Errorf("%w: negative paging values", ErrInvalidRequest)
	}
	if r.StartPage == 0 {
		r.StartPage = 1
	}
	switch r.CrawlerType {
	case "search":
		if strings.TrimSpace(r.Keywords) == "" {
			return fmt.Errorf("%w: keywords required for search", ErrInvalidRequest)
		}
	case "detail":
		if strings.TrimSpace(r.SpecifiedIDs) == "" {
			return fmt.Errorf("%w: specifiedIds required for detail", ErrInvalidRequest)
		}
	case "creator":
		if strings.TrimSpace(r.CreatorIDs) == "" {
			return fmt.Errorf("%w: creatorIds required for creator", ErrInvalidRequest)
		}
	}
	return nil
}

// Args renders the request as crawler command-line flags.
func (r StartRequest) Args() []string {
	args := []string{
		"--platform", r.Platform,
		"--lt", r.LoginType,
		"--type", r.CrawlerType,
		"--save_data_option", r.SaveOption,
		"--start", strconv.Itoa(r.StartPage),
		"--headless", strconv.FormatBool(r.Headless),
	}
	if r.Keywords != "" {
		args = append(args, "--keywords", r.Keywords)
	}
	if r.SpecifiedIDs != "" {
		args = append(args, "--specified_id", r.SpecifiedIDs)
	}
	if r.CreatorIDs != "" {
		args = append(args, "--creator_id", r.CreatorIDs)
	}
	if r.LoginType == "cookie" && r.Cookies != "" {
		args = append(args, "--cookies", r.Cookies)
	}
	if r.CrawlCount > 0 {
		args = append(args, "--max_count", strconv.Itoa(r.CrawlCount))
	}
	if r.EnableComments != nil {
		args = append(args, "--get_comment", strconv.FormatBool(*r.EnableComments))
	}
	return args
}
