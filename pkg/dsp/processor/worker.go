package processor

// FFWorker is a float in, float out block.
type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

// Resetter is implemented by blocks that carry state between calls.
type Resetter interface {
	Reset()
}

type DSPWorker struct {
	Name       string
	InputRate  int
	OutputRate int

	ffWorker      FFWorker
	fOutputBuffer []float32
}

func NewDSPWorkerFF(name string, inputRate, outputRate int, worker FFWorker) *DSPWorker {
	return &DSPWorker{
		Name:       name,
		InputRate:  inputRate,
		OutputRate: outputRate,
		ffWorker:   worker,
	}
}

func (w *DSPWorker) work(input []float32) []float32 {
	size := w.ffWorker.PredictOutputSize(len(input))
	if cap(w.fOutputBuffer) < size {
		w.fOutputBuffer = make([]float32, size*2)
	}
	out := w.fOutputBuffer[:cap(w.fOutputBuffer)]
	n := w.ffWorker.WorkBuffer(input, out)
	return out[:n]
}
