package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

type Options struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath locates the onnxruntime shared library; empty uses the
	// platform default.
	LibraryPath string
	PoolSize    int
	NumThreads  int
}

// TensorInfo describes one model input or output as declared in the file.
type TensorInfo struct {
	Name     string
	Shape    []int64
	DataType string
}

// Server is an Engine backed by a pool of ONNX Runtime sessions.
type Server struct {
	pool       *pool
	descriptor domain.Descriptor
	input      TensorInfo
	output     TensorInfo
	log        *zap.Logger
	ownsEnv    bool
}

// onnxSession owns one session and the tensors bound to it.
type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (s *onnxSession) run(input []float32) ([]float32, error) {
	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, err
	}

	out := s.outputTensor.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (s *onnxSession) destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	if s.inputTensor != nil {
		errs = append(errs, s.inputTensor.Destroy())
	}
	if s.outputTensor != nil {
		errs = append(errs, s.outputTensor.Destroy())
	}
	return errors.Join(errs...)
}

// NewServer loads the model once and creates opts.PoolSize independent
// sessions so that up to PoolSize inferences can run in parallel.
func NewServer(opts Options, log *zap.Logger) (*Server, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}

	ownsEnv, err := initEnvironment(opts.LibraryPath)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Server, error) {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return fail(fmt.Errorf("failed to read model inputs and outputs: %w", err))
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return fail(fmt.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs)))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat || outputs[0].DataType != ort.TensorElementDataTypeFloat {
		return fail(fmt.Errorf("expected float32 input and output, got %v and %v", inputs[0].DataType, outputs[0].DataType))
	}

	input, output := tensorInfo(inputs[0]), tensorInfo(outputs[0])
	if opts.MetadataPath != "" {
		metadata, err := LoadMetadata(opts.MetadataPath)
		if err != nil {
			return fail(err)
		}
		input.Shape = metadata.InputShape
		output.Shape = metadata.OutputShape
	}

	descriptor, err := descriptorFromShapes(input.Shape, output.Shape)
	if err != nil {
		return fail(err)
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return fail(fmt.Errorf("failed to create session options: %w", err))
	}
	defer sessionOptions.Destroy()

	if opts.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return fail(fmt.Errorf("failed to set thread count: %w", err))
		}
	}

	runners := make([]runner, 0, opts.PoolSize)
	for i := 0; i < opts.PoolSize; i++ {
		s, err := newSession(opts.ModelPath, input, output, sessionOptions)
		if err != nil {
			for _, r := range runners {
				_ = r.destroy()
			}
			return fail(fmt.Errorf("session %d: %w", i, err))
		}
		runners = append(runners, s)
	}

	srv := newServer(descriptor, runners, log)
	srv.input, srv.output = input, output
	srv.ownsEnv = ownsEnv

	log.Info("Model loaded",
		zap.String("path", opts.ModelPath),
		zap.Int64s("input_shape", input.Shape),
		zap.Int64s("output_shape", output.Shape),
		zap.Int("pool_size", opts.PoolSize),
		zap.Int("num_threads", opts.NumThreads))

	return srv, nil
}

func newServer(descriptor domain.Descriptor, runners []runner, log *zap.Logger) *Server {
	return &Server{
		pool:       newPool(runners),
		descriptor: descriptor,
		log:        log,
	}
}

func newSession(modelPath string, input, output TensorInfo, options *ort.SessionOptions) (*onnxSession, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(concreteShape(input.Shape)...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(concreteShape(output.Shape)...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{input.Name}, []string{output.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Descriptor() domain.Descriptor {
	return s.descriptor
}

func (s *Server) Loaded() bool {
	return true
}

// IO returns the declared input and output the sessions are bound to.
func (s *Server) IO() (TensorInfo, TensorInfo) {
	return s.input, s.output
}

func (s *Server) Infer(ctx context.Context, input domain.Tensor) ([]float32, error) {
	if want := s.descriptor.InputSize(); len(input.Data) != want {
		return nil, fmt.Errorf("%w: input has %d values, model expects %d", domain.ErrInferenceFailed, len(input.Data), want)
	}

	r, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.release(r)

	start := time.Now()
	probs, err := r.run(input.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInferenceFailed, err)
	}
	if len(probs) != s.descriptor.NumClasses {
		return nil, fmt.Errorf("%w: output has %d values, model declares %d classes", domain.ErrInferenceFailed, len(probs), s.descriptor.NumClasses)
	}

	s.log.Debug("Inference complete", zap.Duration("duration", time.Since(start)))
	return probs, nil
}

func (s *Server) Close() error {
	err := s.pool.close()
	if s.ownsEnv {
		s.ownsEnv = false
		err = errors.Join(err, ort.DestroyEnvironment())
	}
	return err
}

// initEnvironment reports whether this call performed the initialization.
func initEnvironment(libraryPath string) (bool, error) {
	if ort.IsInitialized() {
		return false, nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return false, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return true, nil
}

func tensorInfo(info ort.InputOutputInfo) TensorInfo {
	return TensorInfo{
		Name:     info.Name,
		Shape:    append([]int64(nil), info.Dimensions...),
		DataType: fmt.Sprintf("%v", info.DataType),
	}
}
