package httpadapter

import (
	"context"
	"log/slog"

	"cliparena/contexts/tournament/progression-service/application/commands"
	httptransport "cliparena/contexts/tournament/progression-service/transport/http"
)

type Handler struct {
	Progress commands.ProgressUseCase
	Logger   *slog.Logger
}

func (h Handler) ProgressHandler(ctx context.Context) (httptransport.ProgressResponse, error) {
	report, err := h.Progress.Run(ctx)
	if err != nil {
		return httptransport.ProgressResponse{}, err
	}
	results := make([]httptransport.SlotResultItem, 0, len(report.Results))
	for _, result := range report.Results {
		results = append(results, httptransport.SlotResultItem{
			SlotPosition: result.SlotPosition,
			Outcome:      string(result.Outcome),
			WinnerClipID: result.WinnerClipID,
			Eliminated:   result.Eliminated,
			Error:        result.Error,
		})
	}
	return httptransport.ProgressResponse{
		OK:        report.OK,
		Skipped:   report.Skipped,
		Processed: report.Processed,
		Results:   results,
		CheckedAt: report.CheckedAt,
	}, nil
}
