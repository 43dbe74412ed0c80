package publish

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidRequest      = errors.New("invalid publish request")
	ErrUnsupportedPlatform = errors.New("unsupported publish platform")
	ErrClosed              = errors.New("publisher closed")
)

// Kind is the content type of a task.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// ScheduleOptions are the configured publish-time defaults.
type ScheduleOptions struct {
	DailyQuota int      `json:"dailyQuota" mapstructure:"daily_quota"`
	DailyTimes []string `json:"dailyTimes" mapstructure:"daily_times"`
	StartDays  int      `json:"startDays" mapstructure:"start_days"`
}

// ScheduleOverride is the per-request form of ScheduleOptions. Omitted
// fields keep the configured value; startDays may be set to 0 explicitly.
type ScheduleOverride struct {
	DailyQuota int      `json:"dailyQuota"`
	DailyTimes []string `json:"dailyTimes"`
	StartDays  *int     `json:"startDays"`
}

// VideoRequest is the body of POST /{platform}/publish.
type VideoRequest struct {
	AccountID     int64             `json:"accountId"`
	VideoURL      string            `json:"videoUrl"`
	MediaRefs     []string          `json:"mediaRefs"`
	Title         string            `json:"title"`
	Tags          []string          `json:"tags"`
	ScheduledTime *string           `json:"scheduledTime"`
	ThumbnailURL  string            `json:"thumbnailUrl"`
	ProductLink   string            `json:"productLink"`
	ProductTitle  string            `json:"productTitle"`
	Schedule      *ScheduleOverride `json:"schedule"`
}

func (r VideoRequest) refs() []string {
	out := append([]string(nil), r.MediaRefs...)
	if r.VideoURL != "" {
		out = append([]string{r.VideoURL}, out...)
	}
	return out
}

// ImageRequest is the body of POST /{platform}/publish-image.
type ImageRequest struct {
	AccountID     int64             `json:"accountId"`
	ImageURLs     []string          `json:"imageUrls"`
	ImageURL      string            `json:"imageUrl"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Tags          []string          `json:"tags"`
	ScheduledTime *string           `json:"scheduledTime"`
	Schedule      *ScheduleOverride `json:"schedule"`
}

func (r ImageRequest) refs() []string {
	if len(r.ImageURLs) == 0 && r.ImageURL != "" {
		return []string{r.ImageURL}
	}
	return r.ImageURLs
}

// Task is what an Uploader receives. PublishAt holds one time per file for
// videos and a single time for an image note; zero means publish now.
type Task struct {
	ID           string      `json:"id"`
	Platform     string      `json:"platform"`
	Kind         Kind        `json:"kind"`
	AccountID    int64       `json:"accountId"`
	AccountFile  string      `json:"accountFile"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Tags         []string    `json:"tags"`
	Files        []string    `json:"files"`
	PublishAt    []time.Time `json:"publishAt"`
	Thumbnail    string      `json:"thumbnail,omitempty"`
	ProductLink  string      `json:"productLink,omitempty"`
	ProductTitle string      `json:"productTitle,omitempty"`
}

// Uploader performs the actual upload for one platform.
type Uploader interface {
	Upload(ctx context.Context, t Task) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, t Task) error

func (f UploaderFunc) Upload(ctx context.Context, t Task) error { return f(ctx, t) }

// Accepted is returned once a task has been handed off.
type Accepted struct {
	TaskID      string      `json:"taskId"`
	AccountID   int64       `json:"accountId"`
	Platform    string      `json:"platform"`
	Status      string      `json:"status"`
	Type        Kind        `json:"type,omitempty"`
	ImageCount  int         `json:"imageCount,omitempty"`
	ScheduledAt []time.Time `json:"scheduledAt,omitempty"`
}

// PlatformInfo describes a publish target for GET /platforms.
type PlatformInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           int    `json:"type"`
	SupportedMedia []Kind `json:"supportedMedia"`
	MaxVideoSizeMB int    `json:"maxVideoSizeMB"`
	MaxTitleLength int    `json:"maxTitleLength"`
}

var platforms = []PlatformInfo{
	{ID: "douyin", Name: "抖音", Type: 3, SupportedMedia: []Kind{KindVideo}, MaxVideoSizeMB: 128, MaxTitleLength: 30},
	{ID: "xiaohongshu", Name: "小红书", Type: 1, SupportedMedia: []Kind{KindVideo, KindImage}, MaxVideoSizeMB: 100, MaxTitleLength: 20},
}

func platformInfo(id string) (PlatformInfo, bool) {
	for _, p := range platforms {
		if p.ID == id {
			return p, true
		}
	}
	return PlatformInfo{}, false
}

func (p PlatformInfo) supports(k Kind) bool {
	for _, m := range p.SupportedMedia {
		if m == k {
			return true
		}
	}
	return false
}
