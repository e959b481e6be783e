package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"playground-llm/internal/domain"
)

// CodeStreamSink recibe los eventos incrementales del extractor.
// Las lineas llegan completas (con su '\n') salvo el flush final al cerrar el campo.
type CodeStreamSink interface {
	FieldStarted() error
	Content(text string) error
	FieldComplete() error
}

var (
	// ErrMalformedResponse indica que el buffer final no parsea como {message, code}.
	ErrMalformedResponse = errors.New("malformed model response")
)

// CodeStreamExtractor extrae incrementalmente el valor del campo "code" de un
// objeto JSON que todavia se esta recibiendo. El modelo responde
// {"message": "...", "code": "..."} y queremos empujar el codigo al navegador
// linea por linea antes de que termine el stream.
//
// Estado entre llamadas: buffer acumulado, cursor de escaneo, residuo de linea
// sin '\n', eventos pendientes de entrega y flags de inicio/cierre del campo.
// Decodificar y entregar son pasos separados: si el sink falla, lo decodificado
// queda en pending y el proximo Feed lo reintenta. Un extractor pertenece a una
// sola generacion; no es seguro compartirlo entre goroutines.
type CodeStreamExtractor struct {
	sink            CodeStreamSink
	buf             []byte
	cursor          int
	residue         string
	pending         []string
	started         bool
	startPending    bool
	closed          bool
	completePending bool
}

// NewCodeStreamExtractor crea un extractor para una generacion.
func NewCodeStreamExtractor(sink CodeStreamSink) *CodeStreamExtractor {
	return &CodeStreamExtractor{sink: sink}
}

// Feed agrega un fragmento del stream y emite las lineas nuevas del campo code.
// Los limites de fragmento no significan nada: la clave, el cierre y las
// secuencias de escape pueden venir partidas entre llamadas. Un error de Feed
// es un fallo de entrega del sink, nunca de decodificacion: el contenido sigue
// pendiente y se reintenta en la proxima llamada.
func (e *CodeStreamExtractor) Feed(fragment string) error {
	e.buf = append(e.buf, fragment...)

	if !e.closed {
		if !e.started {
			if !e.detectFieldStart() {
				return nil
			}
			e.started = true
			e.startPending = true
		}

		raw, closed := e.scanValue()
		decoded, held := decodeJSONStringDelta(raw, closed)
		if held != "" {
			// Retener el escape partido hasta que llegue el resto.
			e.cursor -= len(held)
		}

		text := e.residue + decoded
		for {
			idx := strings.IndexByte(text, '\n')
			if idx < 0 {
				break
			}
			e.pending = append(e.pending, text[:idx+1])
			text = text[idx+1:]
		}
		e.residue = text

		if closed {
			if e.residue != "" {
				e.pending = append(e.pending, e.residue)
				e.residue = ""
			}
			e.closed = true
			e.completePending = true
		}
	}

	return e.flush()
}

// flush entrega los eventos acumulados en orden. Ante un error del sink el
// estado queda intacto desde el evento fallido: un fallo transitorio de
// entrega nunca pierde contenido ya decodificado.
func (e *CodeStreamExtractor) flush() error {
	if e.startPending {
		if err := e.sink.FieldStarted(); err != nil {
			return fmt.Errorf("sink field started: %w", err)
		}
		e.startPending = false
	}
	for len(e.pending) > 0 {
		if err := e.sink.Content(e.pending[0]); err != nil {
			return fmt.Errorf("sink content: %w", err)
		}
		e.pending = e.pending[1:]
	}
	if e.completePending {
		if err := e.sink.FieldComplete(); err != nil {
			return fmt.Errorf("sink field complete: %w", err)
		}
		e.completePending = false
	}
	return nil
}

// FieldClosed indica si ya se encontro el cierre del campo code.
func (e *CodeStreamExtractor) FieldClosed() bool {
	return e.closed
}

// Finish parsea el buffer completo como JSON. Este parse es la fuente de
// verdad: lo emitido incrementalmente es solo una optimizacion de latencia y
// nunca sustituye al objeto validado.
func (e *CodeStreamExtractor) Finish() (domain.GenerationResult, error) {
	cleaned := cleanModelJSON(string(e.buf))
	obj := extractFirstJSONObject(cleaned)
	if obj == "" {
		return domain.GenerationResult{}, fmt.Errorf("%w: no json object in buffer", ErrMalformedResponse)
	}

	// Punteros para distinguir campo ausente de campo vacio.
	var parsed struct {
		Message *string `json:"message"`
		Code    *string `json:"code"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Message == nil || parsed.Code == nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: missing message or code field", ErrMalformedResponse)
	}

	return domain.GenerationResult{
		Message: *parsed.Message,
		Code:    *parsed.Code,
	}, nil
}

// detectFieldStart busca `"code"`, luego el ':' y la comilla que abre el valor.
// Si la clave llego pero el resto todavia no, vuelve a intentar en el proximo Feed.
func (e *CodeStreamExtractor) detectFieldStart() bool {
	idx := bytes.Index(e.buf, []byte(`"code"`))
	if idx < 0 {
		return false
	}

	i := idx + len(`"code"`)
	for i < len(e.buf) && isJSONSpace(e.buf[i]) {
		i++
	}
	if i >= len(e.buf) || e.buf[i] != ':' {
		return false
	}
	i++
	for i < len(e.buf) && isJSONSpace(e.buf[i]) {
		i++
	}
	if i >= len(e.buf) || e.buf[i] != '"' {
		return false
	}

	e.cursor = i + 1
	return true
}

// scanValue avanza desde el cursor buscando la comilla de cierre sin escapar.
// Una comilla precedida por backslash es contenido, no cierre; como los escapes
// incompletos se retienen fuera del cursor, el estado de escape nunca cruza
// fragmentos a medias.
func (e *CodeStreamExtractor) scanValue() (raw string, closed bool) {
	esc := false
	for i := e.cursor; i < len(e.buf); i++ {
		c := e.buf[i]
		if esc {
			esc = false
			continue
		}
		if c == '\\' {
			esc = true
			continue
		}
		if c == '"' {
			raw = string(e.buf[e.cursor:i])
			e.cursor = i + 1
			return raw, true
		}
	}
	raw = string(e.buf[e.cursor:])
	e.cursor = len(e.buf)
	return raw, false
}

// decodeJSONStringDelta decodifica los escapes JSON de un delta crudo.
// Si el delta termina en medio de un escape (un backslash suelto, un \u sin
// sus cuatro digitos, o un high surrogate cuyo par todavia no llego), esa cola
// se devuelve en held para el proximo delta en lugar de decodificarse a medias.
// Con final=true nada se retiene: el valor ya cerro y lo que quede incompleto
// se resuelve como lo haria encoding/json sobre el documento entero.
func decodeJSONStringDelta(raw string, final bool) (decoded, held string) {
	var b strings.Builder
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(raw) {
			if final {
				b.WriteString(raw[i:])
				return b.String(), ""
			}
			return b.String(), raw[i:]
		}
		switch raw[i+1] {
		case '"':
			b.WriteByte('"')
			i += 2
		case '\\':
			b.WriteByte('\\')
			i += 2
		case '/':
			b.WriteByte('/')
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case 'u':
			if i+6 > len(raw) {
				if final {
					b.WriteString(raw[i:])
					return b.String(), ""
				}
				return b.String(), raw[i:]
			}
			v, err := strconv.ParseUint(raw[i+2:i+6], 16, 32)
			if err != nil {
				// Escape invalido: conservar los dos caracteres tal cual.
				b.WriteString(raw[i : i+2])
				i += 2
				break
			}
			r := rune(v)
			if r < 0xD800 || r > 0xDBFF {
				// Rune normal; un low surrogate suelto se encodea como
				// U+FFFD, igual que encoding/json.
				b.WriteRune(r)
				i += 6
				break
			}
			// High surrogate: un emoji llega como dos escapes \u y debe
			// decodificar al code point real, igual que el parse final.
			rest := raw[i+6:]
			if !final && isPartialUnicodeEscape(rest) {
				// El posible low surrogate todavia no llego entero.
				return b.String(), raw[i:]
			}
			if len(rest) >= 6 && rest[0] == '\\' && rest[1] == 'u' {
				if lo, loErr := strconv.ParseUint(rest[2:6], 16, 32); loErr == nil {
					if paired := utf16.DecodeRune(r, rune(lo)); paired != utf8.RuneError {
						b.WriteRune(paired)
						i += 12
						break
					}
				}
			}
			// High surrogate sin par: U+FFFD y seguir con lo que venga.
			b.WriteRune(r)
			i += 6
		default:
			// Escape desconocido: dejar el caracter escapado tal cual.
			b.WriteByte(raw[i+1])
			i += 2
		}
	}
	return b.String(), ""
}

// isPartialUnicodeEscape indica si s es un prefijo estricto de un escape
// \uXXXX, es decir, podria completarse con los bytes que todavia no llegaron.
func isPartialUnicodeEscape(s string) bool {
	if len(s) >= 6 {
		return false
	}
	if len(s) == 0 {
		return true
	}
	if s[0] != '\\' {
		return false
	}
	if len(s) == 1 {
		return true
	}
	if s[1] != 'u' {
		return false
	}
	for j := 2; j < len(s); j++ {
		if !isHexDigit(s[j]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
