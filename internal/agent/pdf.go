package agent

import (
    "bufio"
    "regexp"
    "strings"

    "github.com/jung-kurt/gofpdf"
)

var mdLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// RenderPDF renders markdown to a minimal PDF sidecar at outPath
// (supplemented feature, SPEC_FULL.md §5), adapted from
// internal/app/pdf.go's writeSimplePDF: headings get larger bold text,
// blank lines become spacing, and inline Markdown links become clickable
// PDF links. Citation markers like [1] are left as plain text since they
// are not Markdown links.
func RenderPDF(markdown string, outPath string) error {
    pdf := gofpdf.New("P", "mm", "A4", "")
    pdf.SetFont("Helvetica", "", 11)
    pdf.AddPage()

    scanner := bufio.NewScanner(strings.NewReader(markdown))
    scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
    for scanner.Scan() {
        line := scanner.Text()
        s := strings.TrimSpace(line)
        if s == "" {
            pdf.Ln(5)
            continue
        }
        if strings.HasPrefix(s, "#") {
            i := 0
            for i < len(s) && s[i] == '#' {
                i++
            }
            text := strings.TrimSpace(s[i:])
            if text == "" {
                continue
            }
            size := 14.0
            if i >= 2 {
                size = 12.0
            }
            pdf.SetFont("Helvetica", "B", size)
            pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
            pdf.SetFont("Helvetica", "", 11)
            continue
        }

        parts := mdLinkRe.FindAllStringSubmatchIndex(s, -1)
        if len(parts) == 0 {
            pdf.MultiCell(0, 5, s, "", "L", false)
            continue
        }
        pos := 0
        for _, m := range parts {
            if m[0] > pos {
                pdf.Write(5, s[pos:m[0]])
            }
            text := s[m[2]:m[3]]
            url := s[m[4]:m[5]]
            pdf.WriteLinkString(5, text, url)
            pos = m[1]
        }
        if pos < len(s) {
            pdf.Write(5, s[pos:])
        }
        pdf.Ln(6)
    }

    return pdf.OutputFileAndClose(outPath)
}
