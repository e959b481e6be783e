package service

import "strings"

// buildGenerationPrompt arma el prompt que obliga al modelo a responder con el
// objeto JSON {"message", "code"} que el extractor sabe leer en streaming.
func buildGenerationPrompt(userPrompt string) string {
	var sb strings.Builder

	sb.WriteString("Eres el asistente de un taller de paginas web. ")
	sb.WriteString("El participante describe en lenguaje natural lo que quiere ver y vos devolves una pagina completa.\n\n")

	sb.WriteString("=== FORMATO DE RESPUESTA (OBLIGATORIO) ===\n")
	sb.WriteString("Responde UNICAMENTE con un objeto JSON, sin markdown ni texto extra:\n")
	sb.WriteString("{\"message\": \"...\", \"code\": \"...\"}\n")
	sb.WriteString("- message: una frase corta y amable para el participante.\n")
	sb.WriteString("- code: un documento HTML completo y autocontenido (CSS y JS inline), listo para renderizar en un iframe.\n")
	sb.WriteString("- El codigo no debe cargar recursos externos ni usar APIs que pidan permisos.\n\n")

	sb.WriteString("=== PEDIDO DEL PARTICIPANTE ===\n")
	sb.WriteString(strings.TrimSpace(userPrompt))
	sb.WriteString("\n")

	return sb.String()
}
