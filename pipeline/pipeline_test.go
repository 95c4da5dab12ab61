package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/khaledhikmat/aicam-go/service/camera"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/metrics"
)

// testServices builds a ServicesFactory around a throwaway config file and
// the synthetic camera. Tests override individual services as needed.
func testServices(t *testing.T, configJSON string) ServicesFactory {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(configJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgsvc, err := config.NewJSONFile(path)
	if err != nil {
		t.Fatal(err)
	}

	return ServicesFactory{
		CfgSvc:     cfgsvc,
		CameraSvc:  camera.NewSynthetic(cfgsvc),
		MetricsSvc: metrics.New(),
	}
}
