package template

import (
	"fmt"
	"strings"
)

// Fixture generates an A4 flyer with n slots laid out on a three column
// grid. Each slot carries an image placeholder and the full set of text
// roles, which makes it a convenient starting point for new templates.
func Fixture(n int) string {
	const (
		cols   = 3
		cellW  = 66.0
		cellH  = 70.0
		margin = 6.0
	)

	var sb strings.Builder
	sb.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="210mm" height="297mm" viewBox="0 0 210 297">` + "\n")
	sb.WriteString("  <title>Encarte</title>\n")
	sb.WriteString("  <defs>\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, `    <clipPath id="clip_%02d"><rect x="0" y="0" width="60" height="40" rx="3"/></clipPath>`+"\n", i)
	}
	sb.WriteString("  </defs>\n")
	sb.WriteString(`  <rect id="fundo" x="0" y="0" width="210" height="297" fill="#ffe14d"/>` + "\n")
	sb.WriteString(`  <text id="titulo" x="105" y="14" font-size="10" text-anchor="middle">OFERTAS</text>` + "\n")

	for i := 1; i <= n; i++ {
		x := margin + float64((i-1)%cols)*cellW
		y := 20 + float64((i-1)/cols)*cellH
		fmt.Fprintf(&sb, `  <g id="SLOT_%02d" transform="translate(%g,%g)">`+"\n", i, x, y)
		fmt.Fprintf(&sb, `    <rect id="ALVO_IMAGEM_%02d" x="0" y="0" width="60" height="40" fill="#eeeeee" clip-path="url(#clip_%02d)"/>`+"\n", i, i)
		fmt.Fprintf(&sb, `    <text id="TXT_NOME_%02d" x="0" y="47" font-size="4"><tspan x="0" y="47">Produto</tspan></text>`+"\n", i)
		fmt.Fprintf(&sb, `    <text id="TXT_PRECO_DE_%02d" x="0" y="53" font-size="3">De R$ 0,00</text>`+"\n", i)
		fmt.Fprintf(&sb, `    <text id="TXT_PRECO_INTEIRO_%02d" x="0" y="64" font-size="10">0</text>`+"\n", i)
		fmt.Fprintf(&sb, `    <text id="TXT_PRECO_DECIMAL_%02d" x="24" y="64" font-size="5">,00</text>`+"\n", i)
		fmt.Fprintf(&sb, `    <text id="TXT_UNIDADE_%02d" x="40" y="64" font-size="3">un</text>`+"\n", i)
		sb.WriteString("  </g>\n")
	}
	sb.WriteString("</svg>\n")
	return sb.String()
}
