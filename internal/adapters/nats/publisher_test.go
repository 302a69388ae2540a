package natsadapter

import "testing"

func TestPointSubject(t *testing.T) {
	tests := map[string]string{
		"widget-1":        "geofield.widget.widget-1.point",
		"node.12.field":   "geofield.widget.node_12_field.point",
		"with space*>":    "geofield.widget.with_space__.point",
		"":                "geofield.widget._.point",
		"édition_carte_2": "geofield.widget._dition_carte_2.point",
	}
	for in, want := range tests {
		if got := PointSubject(in); got != want {
			t.Errorf("PointSubject(%q) = %q, want %q", in, got, want)
		}
	}
}
