package service

import (
	"errors"
	"strings"
	"testing"
)

type recordingSink struct {
	started  int
	complete int
	chunks   []string
}

func (s *recordingSink) FieldStarted() error {
	s.started++
	return nil
}

func (s *recordingSink) Content(text string) error {
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *recordingSink) FieldComplete() error {
	s.complete++
	return nil
}

func (s *recordingSink) emitted() string {
	return strings.Join(s.chunks, "")
}

func feedAll(t *testing.T, e *CodeStreamExtractor, fragments []string) {
	t.Helper()
	for i, f := range fragments {
		if err := e.Feed(f); err != nil {
			t.Fatalf("feed fragment %d: %v", i, err)
		}
	}
}

func TestCodeStreamExtractor_BasicScenario(t *testing.T) {
	sink := &recordingSink{}
	e := NewCodeStreamExtractor(sink)

	feedAll(t, e, []string{`{"message":"Hi`, `","code":"<di`, `v>A</div`, `>"}`})

	if got := sink.emitted(); got != "<div>A</div>" {
		t.Fatalf("expected emitted content <div>A</div>, got %q", got)
	}
	if sink.started != 1 {
		t.Fatalf("expected exactly one field started event, got %d", sink.started)
	}
	if sink.complete != 1 {
		t.Fatalf("expected exactly one field complete event, got %d", sink.complete)
	}

	result, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Message != "Hi" || result.Code != "<div>A</div>" {
		t.Fatalf("unexpected terminal result: %+v", result)
	}
}

func TestCodeStreamExtractor_SplitEscapeYieldsWholeLines(t *testing.T) {
	sink := &recordingSink{}
	e := NewCodeStreamExtractor(sink)

	// El escape \n viene partido entre fragmentos: debe decodificar a un solo
	// salto de linea, nunca a backslash + 'n' literales.
	feedAll(t, e, []string{`{"message":"x","code":"line1\`, `nline2\n"}`})

	if len(sink.chunks) != 2 {
		t.Fatalf("expected two content events, got %d (%q)", len(sink.chunks), sink.chunks)
	}
	if sink.chunks[0] != "line1\n" || sink.chunks[1] != "line2\n" {
		t.Fatalf("unexpected lines: %q", sink.chunks)
	}
}

func TestCodeStreamExtractor_EscapedQuoteIsNotABoundary(t *testing.T) {
	sink := &recordingSink{}
	e := NewCodeStreamExtractor(sink)

	// El valor contiene la secuencia \"} que un matcheo ingenuo de substrings
	// confundiria con el cierre del campo.
	feedAll(t, e, []string{`{"message":"m","code":"alert(\"}\");done"}`})

	if got := sink.emitted(); got != `alert("}");done` {
		t.Fatalf("expected escaped quote preserved, got %q", got)
	}

	result, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Code != `alert("}");done` {
		t.Fatalf("terminal code mismatch: %q", result.Code)
	}
	if got := sink.emitted(); got != result.Code {
		t.Fatalf("incremental %q diverges from terminal %q", got, result.Code)
	}
}

func TestCodeStreamExtractor_ReassemblyUnderArbitrarySplits(t *testing.T) {
	doc := `{"message":"Hi there","code":"<div>\n  \"quoted\"\tok\\n\n</div>é"}`
	want := "<div>\n  \"quoted\"\tok\\n\n</div>é"

	runSplit := func(t *testing.T, fragments []string) {
		sink := &recordingSink{}
		e := NewCodeStreamExtractor(sink)
		feedAll(t, e, fragments)

		if got := sink.emitted(); got != want {
			t.Fatalf("fragments %q: emitted %q, want %q", fragments, got, want)
		}
		if sink.started != 1 || sink.complete != 1 {
			t.Fatalf("fragments %q: started=%d complete=%d", fragments, sink.started, sink.complete)
		}
		// Integridad de lineas: todos los chunks menos el ultimo terminan en '\n'.
		for i, c := range sink.chunks[:len(sink.chunks)-1] {
			if !strings.HasSuffix(c, "\n") {
				t.Fatalf("chunk %d (%q) is not a complete line", i, c)
			}
		}
		result, err := e.Finish()
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		if result.Code != want {
			t.Fatalf("terminal code %q, want %q", result.Code, want)
		}
	}

	t.Run("every two-way split", func(t *testing.T) {
		for i := 1; i < len(doc); i++ {
			runSplit(t, []string{doc[:i], doc[i:]})
		}
	})

	t.Run("byte by byte", func(t *testing.T) {
		fragments := make([]string, 0, len(doc))
		for i := 0; i < len(doc); i++ {
			fragments = append(fragments, doc[i:i+1])
		}
		runSplit(t, fragments)
	})

	t.Run("whole document at once", func(t *testing.T) {
		runSplit(t, []string{doc})
	})
}

func TestCodeStreamExtractor_SurrogatePairsMatchTerminalParse(t *testing.T) {
	doc := `{"message":"m","code":"hi \uD83D\uDE00 end\nfin"}`
	want := "hi \U0001F600 end\nfin"

	runSplit := func(t *testing.T, fragments []string) {
		sink := &recordingSink{}
		e := NewCodeStreamExtractor(sink)
		feedAll(t, e, fragments)

		if got := sink.emitted(); got != want {
			t.Fatalf("fragments %q: emitted %q, want %q", fragments, got, want)
		}
		result, err := e.Finish()
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		if result.Code != want {
			t.Fatalf("terminal code %q, want %q", result.Code, want)
		}
		if got := sink.emitted(); got != result.Code {
			t.Fatalf("incremental %q diverges from terminal %q", got, result.Code)
		}
	}

	t.Run("every two-way split", func(t *testing.T) {
		for i := 1; i < len(doc); i++ {
			runSplit(t, []string{doc[:i], doc[i:]})
		}
	})

	t.Run("byte by byte", func(t *testing.T) {
		fragments := make([]string, 0, len(doc))
		for i := 0; i < len(doc); i++ {
			fragments = append(fragments, doc[i:i+1])
		}
		runSplit(t, fragments)
	})

	t.Run("whole document at once", func(t *testing.T) {
		runSplit(t, []string{doc})
	})
}

// flakySink falla la primera entrega de contenido y despues funciona, como un
// cliente que tarda en drenar el stream.
type flakySink struct {
	recordingSink
	failures int
}

func (s *flakySink) Content(text string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("client stalled")
	}
	return s.recordingSink.Content(text)
}

func TestCodeStreamExtractor_RetriesDeliveryAfterSinkError(t *testing.T) {
	sink := &flakySink{failures: 1}
	e := NewCodeStreamExtractor(sink)

	if err := e.Feed(`{"message":"m","code":"a\n`); err == nil {
		t.Fatalf("expected delivery error from sink")
	}

	// El fallo de entrega no avanza el estado: el proximo Feed reintenta la
	// linea pendiente antes de las nuevas, sin perder ni duplicar contenido.
	feedAll(t, e, []string{`bb\n`, `cc"}`})

	if got := sink.emitted(); got != "a\nbb\ncc" {
		t.Fatalf("expected full content after transient sink error, got %q", got)
	}
	if sink.started != 1 || sink.complete != 1 {
		t.Fatalf("unexpected lifecycle events: started=%d complete=%d", sink.started, sink.complete)
	}

	result, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := sink.emitted(); got != result.Code {
		t.Fatalf("incremental %q diverges from terminal %q", got, result.Code)
	}
}

func TestCodeStreamExtractor_NoEmissionAfterFieldCloses(t *testing.T) {
	sink := &recordingSink{}
	e := NewCodeStreamExtractor(sink)

	feedAll(t, e, []string{`{"message":"m","code":"done"`})
	if !e.FieldClosed() {
		t.Fatalf("expected field closed")
	}
	before := len(sink.chunks)

	// Lo que llega despues del cierre solo alimenta el parse final.
	feedAll(t, e, []string{`}`})
	if len(sink.chunks) != before {
		t.Fatalf("expected no content after field close, got %q", sink.chunks[before:])
	}
	if sink.complete != 1 {
		t.Fatalf("expected single field complete event, got %d", sink.complete)
	}
}

func TestCodeStreamExtractor_FinishRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing code", `{"message":"only"}`},
		{"missing message", `{"code":"only"}`},
		{"truncated stream", `{"message":"x","code":"abc`},
		{"not json", `lo siento, no puedo ayudar con eso`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			e := NewCodeStreamExtractor(sink)
			feedAll(t, e, []string{tc.doc})
			if _, err := e.Finish(); !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestCodeStreamExtractor_FinishStripsFences(t *testing.T) {
	sink := &recordingSink{}
	e := NewCodeStreamExtractor(sink)
	feedAll(t, e, []string{"```json\n", `{"message":"m","code":"<p>x</p>"}`, "\n```"})

	result, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Code != "<p>x</p>" {
		t.Fatalf("unexpected code: %q", result.Code)
	}
}

func TestDecodeJSONStringDelta(t *testing.T) {
	t.Run("holds lone trailing backslash", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`abc\`, false)
		if decoded != "abc" || held != `\` {
			t.Fatalf("got decoded=%q held=%q", decoded, held)
		}
	})

	t.Run("holds partial unicode escape", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`x\u26`, false)
		if decoded != "x" || held != `\u26` {
			t.Fatalf("got decoded=%q held=%q", decoded, held)
		}
	})

	t.Run("decodes standard escapes", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`a\\b\"c\nd\te☺`, false)
		if held != "" {
			t.Fatalf("unexpected held %q", held)
		}
		if decoded != "a\\b\"c\nd\te☺" {
			t.Fatalf("unexpected decoded %q", decoded)
		}
	})

	t.Run("decodes surrogate pair to one rune", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`hi \uD83D\uDE00 end`, false)
		if held != "" {
			t.Fatalf("unexpected held %q", held)
		}
		if decoded != "hi 😀 end" {
			t.Fatalf("unexpected decoded %q", decoded)
		}
	})

	t.Run("holds high surrogate waiting for its pair", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`hi \uD83D`, false)
		if decoded != "hi " || held != `\uD83D` {
			t.Fatalf("got decoded=%q held=%q", decoded, held)
		}
		decoded, held = decodeJSONStringDelta(`\uD83D\uDE`, false)
		if decoded != "" || held != `\uD83D\uDE` {
			t.Fatalf("got decoded=%q held=%q", decoded, held)
		}
	})

	t.Run("unpaired surrogate resolves like the terminal parse", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`x\uD83Dy`, false)
		if held != "" {
			t.Fatalf("unexpected held %q", held)
		}
		if decoded != "x�y" {
			t.Fatalf("unexpected decoded %q", decoded)
		}
		decoded, held = decodeJSONStringDelta(`x\uD83D`, true)
		if held != "" {
			t.Fatalf("unexpected held %q", held)
		}
		if decoded != "x�" {
			t.Fatalf("unexpected decoded %q", decoded)
		}
	})

	t.Run("invalid unicode escape kept verbatim", func(t *testing.T) {
		decoded, held := decodeJSONStringDelta(`\uZZZZ`, false)
		if held != "" {
			t.Fatalf("unexpected held %q", held)
		}
		if decoded != `\uZZZZ` {
			t.Fatalf("unexpected decoded %q", decoded)
		}
	})
}
