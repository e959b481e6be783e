package llm

import "context"

// MockClient permite tests sin llamar a un LLM real. Entrega Fragments en
// orden al callback y despues devuelve Err.
type MockClient struct {
	Fragments []string
	Err       error
}

func (m *MockClient) GenerateStream(_ context.Context, _ string, onFragment func(string) error) error {
	for _, f := range m.Fragments {
		if err := onFragment(f); err != nil {
			return err
		}
	}
	return m.Err
}
