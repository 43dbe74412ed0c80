package client

import "time"

// StartRequest is a crawl job.
type StartRequest struct {
	Platform       string `json:"platform"`
	CrawlerType    string `json:"crawlerType,omitempty"`
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

// StartResponse acknowledges an accepted crawl job.
type StartResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	AcceptedAt  time.Time `json:"acceptedAt"`
	ClientJobID string    `json:"clientJobId,omitempty"`
	PID         int       `json:"pid"`
}

// CrawlerStatus mirrors GET /crawler/status.
type CrawlerStatus struct {
	Status       string     `json:"status"`
	Running      bool       `json:"running"`
	PID          int        `json:"pid,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	CrawlerType  string     `json:"crawlerType,omitempty"`
	ClientJobID  string     `json:"clientJobId,omitempty"`
	Args         []string   `json:"args,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LoginState mirrors GET /crawler/login-status/{platform}.
type LoginState struct {
	HasValidLogin  bool       `json:"hasValidLogin"`
	Platform       string     `json:"platform"`
	CookiesFound   []string   `json:"cookiesFound"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
	Recommendation string     `json:"recommendation"`
	Message        string     `json:"message"`
}

type LoginSession struct {
	SessionID   string   `json:"sessionId"`
	Status      string   `json:"status,omitempty"`
	Platform    string   `json:"platform"`
	AccountName string   `json:"accountName,omitempty"`
	Messages    []string `json:"messages,omitempty"`
	Done        bool     `json:"done,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Detail string `json:"detail"`
}
