package reporting

import (
	"context"
	"errors"
	"time"

	"crm-dialer/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs. calls.Repository satisfies it;
// implementations must filter by project.
type Repository interface {
	ListCalls(ctx context.Context, projectID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.ProjectID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.ProjectID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ProjectID: req.ProjectID, Range: req.Range, ByStatus: map[string]int{}}
	withDuration := 0
	for _, c := range rows {
		out.TotalCalls++
		out.ByStatus[string(c.Status)]++
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
			withDuration++
		}
		if c.StartedAt != nil {
			out.ConnectedCalls++
		}
		if !c.Status.IsTerminal() {
			out.InProgressCalls++
		}
		if c.RecordingURL != nil && *c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.Transcription != nil && *c.Transcription != "" {
			out.TranscribedCalls++
		}
	}
	if withDuration > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / withDuration
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
