package storage

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
)

type diskService struct {
	CfgSvc config.IService
}

func NewDisk(cfgsvc config.IService) IService {
	return &diskService{CfgSvc: cfgsvc}
}

// StoreSnapshot writes the frame as an incident JPEG and returns its path.
// A short random suffix keeps same-second incidents from colliding.
func (svc *diskService) StoreSnapshot(frame model.Frame, alertType string) (string, error) {
	if frame.Empty() {
		return "", fmt.Errorf("empty frame")
	}

	dir := svc.CfgSvc.GetVideoStoragePath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir %s: %w", dir, err)
	}

	name := fmt.Sprintf("incident_%s_%s_%s.jpg",
		alertType, time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, frame.RGBA(), &jpeg.Options{Quality: 85}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return path, nil
}

// StorePreRoll writes the capture history leading up to an incident as a
// directory of numbered JPEGs, oldest first, and returns the directory path.
func (svc *diskService) StorePreRoll(frames []model.Frame, alertType string) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames")
	}

	base := svc.CfgSvc.GetVideoStoragePath()
	dir := filepath.Join(base, fmt.Sprintf("preroll_%s_%s_%s",
		alertType, time.Now().Format("20060102_150405"), uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create preroll dir %s: %w", dir, err)
	}

	for i, frame := range frames {
		if frame.Empty() {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.jpg", i))
		f, err := os.Create(path)
		if err != nil {
			return "", fmt.Errorf("create preroll frame %s: %w", path, err)
		}
		if err := jpeg.Encode(f, frame.RGBA(), &jpeg.Options{Quality: 85}); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("encode preroll frame: %w", err)
		}
		f.Close()
	}
	return dir, nil
}
