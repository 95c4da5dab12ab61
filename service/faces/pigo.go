package faces

import (
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/chewxy/math32"
	pigo "github.com/esimov/pigo/core"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// Faces are located on a quarter-scale pass and matched by embedding
// distance. 0.6 is the usual euclidean cutoff for same-person matches.
const (
	downscale     = 4
	faceInputSize = 112
	embeddingSize = 512
	matchDistance = 0.6
	minQuality    = 5.0
)

type pigoService struct {
	CfgSvc     config.IService
	classifier *pigo.Pigo
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	known      []model.KnownFace
}

// NewPigo loads the face cascade, the embedding model and the known-face
// gallery. Callers degrade to NewDisabled on error; face recognition is
// optional and never fatal to the pipeline.
func NewPigo(cfgsvc config.IService, datasvc data.IService) (IService, error) {
	cascade, err := os.ReadFile(cfgsvc.GetFaceCascadePath())
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}

	if !ort.IsInitialized() {
		if libPath := cfgsvc.GetOnnxLibraryPath(); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, faceInputSize, faceInputSize))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingSize))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfgsvc.GetFaceModelPath(),
		[]string{"input"}, []string{"embedding"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("open face model: %w", err)
	}

	known, err := datasvc.GetKnownFaces()
	if err != nil {
		session.Destroy()
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("load known faces: %w", err)
	}
	lgr.Logger.Info("face recognition ready", slog.Int("knownFaces", len(known)))

	return &pigoService{
		CfgSvc:     cfgsvc,
		classifier: classifier,
		session:    session,
		input:      input,
		output:     output,
		known:      known,
	}, nil
}

func (svc *pigoService) Enabled() bool {
	return true
}

func (svc *pigoService) DetectFaces(frame model.Frame) ([]model.Face, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	small := resize.Resize(uint(frame.Width/downscale), uint(frame.Height/downscale),
		frame.RGBA(), resize.Bilinear)
	bounds := small.Bounds()
	pixels := pigo.RgbToGrayscale(small)

	params := pigo.CascadeParams{
		MinSize:     20,
		MaxSize:     bounds.Dy(),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    bounds.Dx(),
		},
	}

	dets := svc.classifier.RunCascade(params, 0.0)
	dets = svc.classifier.ClusterDetections(dets, 0.2)

	faces := []model.Face{}
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}

		half := det.Scale / 2
		loc := model.FaceLocation{
			Top:    clamp((det.Row-half)*downscale, 0, frame.Height-1),
			Right:  clamp((det.Col+half)*downscale, 0, frame.Width-1),
			Bottom: clamp((det.Row+half)*downscale, 0, frame.Height-1),
			Left:   clamp((det.Col-half)*downscale, 0, frame.Width-1),
		}

		face := model.Face{Location: loc, Name: "Unknown"}

		embedding, err := svc.embed(frame, loc)
		if err != nil {
			lgr.Logger.Warn("face embedding failed", slog.Any("error", err))
			faces = append(faces, face)
			continue
		}

		name, dist, ok := svc.bestMatch(embedding)
		face.Distance = dist
		if ok {
			face.Name = name
			face.Known = true
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func (svc *pigoService) Close() error {
	if svc.session != nil {
		svc.session.Destroy()
		svc.session = nil
	}
	if svc.input != nil {
		svc.input.Destroy()
		svc.input = nil
	}
	if svc.output != nil {
		svc.output.Destroy()
		svc.output = nil
	}
	return nil
}

func (svc *pigoService) embed(frame model.Frame, loc model.FaceLocation) ([]float32, error) {
	rect := image.Rect(loc.Left, loc.Top, loc.Right, loc.Bottom)
	if rect.Dx() < 8 || rect.Dy() < 8 {
		return nil, fmt.Errorf("face region too small: %v", rect)
	}

	crop := frame.RGBA().SubImage(rect)
	resized := resize.Resize(faceInputSize, faceInputSize, crop, resize.Bilinear)

	data := svc.input.GetData()
	channelSize := faceInputSize * faceInputSize
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	idx := 0
	b := resized.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			red[idx] = (float32(r>>8)/255.0 - 0.5) / 0.5
			green[idx] = (float32(g>>8)/255.0 - 0.5) / 0.5
			blue[idx] = (float32(bl>>8)/255.0 - 0.5) / 0.5
			idx++
		}
	}

	if err := svc.session.Run(); err != nil {
		return nil, fmt.Errorf("run face model: %w", err)
	}

	out := make([]float32, embeddingSize)
	copy(out, svc.output.GetData())
	return out, nil
}

func (svc *pigoService) bestMatch(embedding []float32) (string, float32, bool) {
	best := float32(math32.MaxFloat32)
	name := ""
	for _, kf := range svc.known {
		if len(kf.Encoding) != len(embedding) {
			continue
		}
		if d := euclidean(embedding, kf.Encoding); d < best {
			best = d
			name = kf.Name
		}
	}
	if name == "" {
		return "", 0, false
	}
	if best < matchDistance {
		return name, best, true
	}
	return "", best, false
}

func euclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
