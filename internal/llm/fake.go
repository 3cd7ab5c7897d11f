package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// FakeProvider answers without any network call. It backs the "fake"
// provider for local play and tests.
type FakeProvider struct {
	Respond func(req Request) (string, error)
}

func NewFakeProvider(respond func(req Request) (string, error)) *FakeProvider {
	if respond == nil {
		respond = FakeJudge
	}
	return &FakeProvider{Respond: respond}
}

func (p *FakeProvider) Name() string { return ProviderFake }

func (p *FakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	content, err := p.Respond(req)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderFake, Model: req.Model, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &ProviderError{Provider: ProviderFake, Model: req.Model, Err: ErrEmptyResponse}
	}
	return &Response{Provider: ProviderFake, Model: req.Model, Content: content}, nil
}

// FakeJudge reads the resource ids out of an evaluation prompt and gives
// every resource a middling score.
func FakeJudge(req Request) (string, error) {
	out := map[string]verdict{}
	for _, line := range strings.Split(req.Prompt, "\n") {
		ids, ok := strings.CutPrefix(line, resourceIDsLabel)
		if !ok {
			continue
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				score := 5.0
				out[id] = verdict{Score: &score, Explanation: "Scored by the offline judge."}
			}
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
