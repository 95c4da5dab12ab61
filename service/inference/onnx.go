package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// YOLOv8 exports one input "images" (1x3x640x640, RGB planes, 0..1) and one
// output "output0" (1x84x8400): 4 box coordinates in input space followed by
// 80 class scores per anchor.
const (
	inputSize  = 640
	numClasses = 80
	numAnchors = 8400
)

type onnxService struct {
	CfgSvc  config.IService
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewOnnx(cfgsvc config.IService) IService {
	return &onnxService{CfgSvc: cfgsvc}
}

func (svc *onnxService) Load() error {
	modelPath := svc.CfgSvc.GetModelPath()

	if libPath := svc.CfgSvc.GetOnnxLibraryPath(); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return model.ModelLoadError{Path: modelPath, Inner: fmt.Errorf("initialize onnx runtime: %w", err)}
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return model.ModelLoadError{Path: modelPath, Inner: fmt.Errorf("input tensor: %w", err)}
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+numClasses, numAnchors))
	if err != nil {
		input.Destroy()
		return model.ModelLoadError{Path: modelPath, Inner: fmt.Errorf("output tensor: %w", err)}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return model.ModelLoadError{Path: modelPath, Inner: fmt.Errorf("session options: %w", err)}
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(4)
	options.SetInterOpNumThreads(2)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return model.ModelLoadError{Path: modelPath, Inner: err}
	}

	svc.session = session
	svc.input = input
	svc.output = output
	lgr.Logger.Info("detection model loaded", slog.String("path", modelPath))
	return nil
}

// Detect runs one synchronous inference pass. The context gates entry; a run
// already started is not interruptible.
func (svc *onnxService) Detect(ctx context.Context, frame model.Frame, confThreshold, iouThreshold float32) ([]model.Detection, error) {
	if svc.session == nil {
		return nil, fmt.Errorf("detection model not loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepareInput(frame, svc.input)

	if err := svc.session.Run(); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	return decodeOutput(svc.output.GetData(), frame.Width, frame.Height, confThreshold, iouThreshold), nil
}

func (svc *onnxService) Close() error {
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

func prepareInput(frame model.Frame, dst *ort.Tensor[float32]) {
	data := dst.GetData()
	channelSize := inputSize * inputSize

	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	resized := resize.Resize(inputSize, inputSize, frame.RGBA(), resize.Lanczos3)

	idx := 0
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			red[idx] = float32(r>>8) / 255.0
			green[idx] = float32(g>>8) / 255.0
			blue[idx] = float32(b>>8) / 255.0
			idx++
		}
	}
}

type candidate struct {
	x1, y1, x2, y2 float32
	score          float32
	class          int
}

func decodeOutput(data []float32, frameW, frameH int, confThreshold, iouThreshold float32) []model.Detection {
	var candidates []candidate

	for i := 0; i < numAnchors; i++ {
		classID, best := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if score := data[(4+c)*numAnchors+i]; score > best {
				best = score
				classID = c
			}
		}
		if best < confThreshold {
			continue
		}

		xc := data[0*numAnchors+i]
		yc := data[1*numAnchors+i]
		w := data[2*numAnchors+i]
		h := data[3*numAnchors+i]

		candidates = append(candidates, candidate{
			x1:    (xc - w/2) / inputSize * float32(frameW),
			y1:    (yc - h/2) / inputSize * float32(frameH),
			x2:    (xc + w/2) / inputSize * float32(frameW),
			y2:    (yc + h/2) / inputSize * float32(frameH),
			score: best,
			class: classID,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := make([]bool, len(candidates))
	detections := []model.Detection{}
	for i, c := range candidates {
		if used[i] {
			continue
		}
		used[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if !used[j] && boxIoU(c, candidates[j]) > iouThreshold {
				used[j] = true
			}
		}

		detections = append(detections, model.Detection{
			Class:      cocoClasses[c.class],
			Confidence: c.score,
			Box: model.Box{
				X1: clampInt(int(c.x1), 0, frameW-1),
				Y1: clampInt(int(c.y1), 0, frameH-1),
				X2: clampInt(int(c.x2), 0, frameW-1),
				Y2: clampInt(int(c.y2), 0, frameH-1),
			},
		})
	}
	return detections
}

func boxIoU(a, b candidate) float32 {
	interW := math32.Min(a.x2, b.x2) - math32.Max(a.x1, b.x1)
	interH := math32.Min(a.y2, b.y2) - math32.Max(a.y1, b.y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
	"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}
