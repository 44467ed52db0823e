package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// Upload is a file handed over by the transport layer.
type Upload struct {
	File     io.Reader
	Filename string
}

type ProofInput struct {
	Screenshot  *Upload
	ChannelName string
	Platform    string
	VideoLink   string
	Duration    string
	Note        string
}

type CompletionInput struct {
	Screenshot *Upload
	Platform   string
	VideoLink  string
}

// CompletionResult reports whether a completion proof was recorded. When the
// view threshold is not met nothing is stored and the reporter may retry.
type CompletionResult struct {
	Completed     bool              `json:"completed"`
	CurrentViews  int64             `json:"current_views"`
	RequiredViews int64             `json:"required_views"`
	Message       string            `json:"message,omitempty"`
	Assignment    models.Assignment `json:"assignment"`
}

func (s *Service) upload(ctx context.Context, u *Upload, folder string) (string, error) {
	if u == nil || u.File == nil {
		return "", nil
	}
	if s.media == nil {
		return "", fmt.Errorf("%w: media store is not configured", ErrExternal)
	}
	start := time.Now()
	url, err := s.media.Upload(ctx, u.File, u.Filename, folder)
	s.metrics.ObserveExternal("media_store", start, err)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", ErrExternal, u.Filename, err)
	}
	return url, nil
}

// MediaRemover is implemented by media stores that can delete an upload.
type MediaRemover interface {
	Delete(ctx context.Context, url string) error
}

// discardUploads deletes uploads left behind by a failed create.
func (s *Service) discardUploads(ctx context.Context, urls []string) {
	remover, ok := s.media.(MediaRemover)
	if !ok {
		return
	}
	for _, url := range urls {
		if err := remover.Delete(ctx, url); err != nil {
			zap.L().Warn("Upload cleanup failed", zap.String("url", url), zap.Error(err))
		}
	}
}

func (s *Service) uploadAll(ctx context.Context, uploads []Upload, folder string) ([]string, error) {
	urls := make([]string, 0, len(uploads))
	for i := range uploads {
		url, err := s.upload(ctx, &uploads[i], folder)
		if err != nil {
			s.discardUploads(ctx, urls)
			return nil, err
		}
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

func (in ProofInput) validate(pricing models.PricingConfig) error {
	if in.Screenshot == nil || in.Screenshot.File == nil {
		return validationf("screenshot is required")
	}
	if strings.TrimSpace(in.VideoLink) == "" {
		return validationf("video_link is required")
	}
	if strings.TrimSpace(in.Platform) == "" || !pricing.HasPlatform(in.Platform) {
		return validationf("platform %q is not supported", in.Platform)
	}
	return nil
}

// currentViews asks the view counter for a video's views. A failure is
// reported as ok=false so callers can treat it as not yet completed.
func (s *Service) currentViews(ctx context.Context, platform, videoURL string) (int64, bool) {
	if s.views == nil {
		return 0, false
	}
	start := time.Now()
	views, err := s.views.Views(ctx, platform, videoURL)
	s.metrics.ObserveExternal("view_counter", start, err)
	if err != nil {
		zap.L().Warn("view count unavailable",
			zap.String("platform", platform),
			zap.String("video_url", videoURL),
			zap.Error(err))
		return 0, false
	}
	return views, true
}

type ViewReportRow struct {
	ReporterID   primitive.ObjectID      `json:"reporter_id"`
	IinsafID     string                  `json:"iinsaf_id,omitempty"`
	Status       models.AssignmentStatus `json:"status"`
	Platform     string                  `json:"platform"`
	VideoLink    string                  `json:"video_link"`
	Views        int64                   `json:"views"`
	Available    bool                    `json:"available"`
	ThresholdMet bool                    `json:"threshold_met"`
}

type ViewReport struct {
	AdID       primitive.ObjectID `json:"ad_id"`
	BaseView   int64              `json:"base_view"`
	TotalViews int64              `json:"total_views"`
	Rows       []ViewReportRow    `json:"rows"`
}

// AdViewReport returns live view counts for every reporter that has
// published a video for the ad.
func (s *Service) AdViewReport(ctx context.Context, actor Actor, adID primitive.ObjectID) (ViewReport, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return ViewReport{}, storeErr(err, "ad")
	}
	if !actor.IsAdmin() && ad.OwnerID != actor.ID {
		return ViewReport{}, ErrNotOwner
	}
	rows, err := s.store.ListByEntity(ctx, models.KindAd, adID)
	if err != nil {
		return ViewReport{}, storeErr(err, "assignments")
	}

	report := ViewReport{AdID: adID, BaseView: ad.BaseView, Rows: make([]ViewReportRow, 0)}
	for _, a := range rows {
		if a.Proof == nil {
			continue
		}
		platform, link := a.Proof.Platform, a.Proof.VideoLink
		if a.Proof.CompletionVideoLink != "" {
			link = a.Proof.CompletionVideoLink
		}
		if link == "" {
			continue
		}
		views, ok := s.currentViews(ctx, platform, link)
		report.Rows = append(report.Rows, ViewReportRow{
			ReporterID:   a.ReporterID,
			IinsafID:     a.IinsafID,
			Status:       a.Status,
			Platform:     platform,
			VideoLink:    link,
			Views:        views,
			Available:    ok,
			ThresholdMet: ok && views >= ad.BaseView,
		})
		report.TotalViews += views
	}
	return report, nil
}
