package pipeline

import "testing"

func TestExtractPrice(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"$ 1,234.50 EA", 1234.50, true},
		{"12.99 EA", 12.99, true},
		{"45.00 USD", 45.00, true},
		{"price: 19.95", 19.95, true},
		{"no numbers here", 0, false},
	}
	for _, c := range cases {
		got := ExtractPrice(c.text)
		if c.ok != (got != nil) {
			t.Fatalf("ExtractPrice(%q) presence = %v, want %v", c.text, got != nil, c.ok)
		}
		if got != nil && *got != c.want {
			t.Fatalf("ExtractPrice(%q) = %v, want %v", c.text, *got, c.want)
		}
	}
}

func TestExtractContractor(t *testing.T) {
	got := ExtractContractor("contractor: widget co, contract#: gs-123")
	if got == nil || *got != "Widget Co." {
		t.Fatalf("unexpected contractor: %v", got)
	}

	got = ExtractContractor("vendor: acme supply llc\nmore text")
	if got == nil || *got != "Acme Supply LLC" {
		t.Fatalf("unexpected contractor: %v", got)
	}

	if got := ExtractContractor("nothing labelled"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestExtractContract(t *testing.T) {
	got := ExtractContract("contract#: gs-07f-1234a includes shipping")
	if got == nil || *got != "GS-07F-1234A" {
		t.Fatalf("unexpected contract: %v", got)
	}

	// Loose "contract ..." capture hitting a stop word must be dropped.
	if got := ExtractContract("contract for the agency"); got != nil && *got == "FOR" {
		t.Fatalf("stop word leaked through: %q", *got)
	}

	if got := ExtractContract("no identifiers"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestExtractManufacturerPreference(t *testing.T) {
	got := ExtractManufacturer("brand: other co mfr: acme industrial")
	if got == nil || *got != "acme industrial" {
		t.Fatalf("mfr label must win: %v", got)
	}

	got = ExtractManufacturer("manufacturer: 3m company")
	if got == nil || *got != "3m company" {
		t.Fatalf("unexpected manufacturer: %v", got)
	}

	if got := ExtractManufacturer("no labels at all"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestExtractUnit(t *testing.T) {
	got := ExtractUnit("mfr: acme, unit: ea, $12.50")
	if got == nil || *got != "EA" {
		t.Fatalf("unexpected unit: %v", got)
	}

	got = ExtractUnit("$45.00 bx of parts")
	if got == nil || *got != "BX" {
		t.Fatalf("unexpected unit: %v", got)
	}
}

func TestExtractSIN(t *testing.T) {
	got := ExtractSIN("Schedule/SIN: MAS/332510C\nmore detail")
	if got == nil || *got != "332510C" {
		t.Fatalf("unexpected SIN: %v", got)
	}

	got = ExtractSIN("SIN: 51V")
	if got == nil || *got != "51V" {
		t.Fatalf("unexpected SIN: %v", got)
	}

	if got := ExtractSIN("no schedule markers"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestExtractSINFromHTML(t *testing.T) {
	html := `<html><body><table>
		<tr><th>Contract</th><td>GS-07F-1234A</td></tr>
		<tr><th>Schedule/SIN</th><td>MAS/332510C</td></tr>
	</table></body></html>`
	got := ExtractSINFromHTML(html)
	if got == nil || *got != "332510C" {
		t.Fatalf("unexpected SIN: %v", got)
	}

	if got := ExtractSINFromHTML("<html><body><p>plain</p></body></html>"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}
