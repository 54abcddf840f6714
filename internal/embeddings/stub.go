package embeddings

// StubEmbedder produces deterministic vectors for local runs without an API
// key. Vectors are derived from byte histograms so similar texts land near
// each other, which is enough for smoke-testing search end to end.
type StubEmbedder struct {
	dims int
}

const stubDims = 1536

func NewStubEmbedder() *StubEmbedder {
	return &StubEmbedder{dims: stubDims}
}

func (e *StubEmbedder) Embed(text string) (Vector, error) {
	vec := make(Vector, e.dims)
	if len(text) == 0 {
		return vec, nil
	}
	for i := 0; i < len(text); i++ {
		vec[(int(text[i])*31+i)%e.dims] += 1
	}
	norm := float32(len(text))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e *StubEmbedder) EmbedBatch(texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
