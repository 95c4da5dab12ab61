package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// InitDB creates the persistence schema and exits. The data service applies
// the schema on construction, so by the time this runs the tables exist; the
// mode verifies the connection with a summary query and reports.
func InitDB(_ context.Context, svcs pipeline.ServicesFactory) error {
	summary, err := svcs.DataSvc.GetStatisticsSummary()
	if err != nil {
		return err
	}

	lgr.Logger.Info(
		"database schema initialized",
		slog.String("path", svcs.CfgSvc.GetDatabasePath()),
		slog.Int64("existingEvents", summary.TotalEvents),
	)
	return nil
}
