package report

import (
	"errors"
	"reflect"
	"testing"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
)

func item(id amf3.Value, label string) *amf3.Object {
	return amf3.NewObject(
		&amf3.Trait{ClassName: "com.example.ReportItem", Members: []string{"id", "descricao"}},
		id, amf3.String(label),
	)
}

func TestOptions(t *testing.T) {
	want := []Option{{Value: "1", Label: "RESUMO"}, {Value: "2", Label: "DETALHE"}}
	rows := []amf3.Value{item(amf3.Integer(1), "RESUMO"), item(amf3.Double(2), "DETALHE")}

	tests := []struct {
		name  string
		value amf3.Value
	}{
		{"array", amf3.NewArray(rows...)},
		{"object vector", &amf3.ObjectVector{TypeName: "com.example.ReportItem", Items: rows}},
		{"externalizable collection", &amf3.Object{
			Trait: &amf3.Trait{ClassName: "flex.messaging.io.ArrayCollection", Externalizable: true},
			Data:  amf3.NewArray(rows...),
		}},
		{"source member", amf3.NewAnonymousObject(amf3.Member{Key: "source", Value: amf3.NewArray(rows...)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Options(tt.value, "id", "descricao")
			if err != nil {
				t.Fatalf("Options: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Options = %+v, want %+v", got, want)
			}
		})
	}
}

func TestOptionsFromDecodedResponse(t *testing.T) {
	collection := &amf3.Object{
		Trait: &amf3.Trait{ClassName: "flex.messaging.io.ArrayCollection", Externalizable: true},
		Data: amf3.NewArray(
			amf3.NewAnonymousObject(amf3.Member{Key: "value", Value: amf3.String("a")}, amf3.Member{Key: "label", Value: amf3.String("Alpha")}),
			amf3.NewAnonymousObject(amf3.Member{Key: "value", Value: amf3.String("b")}, amf3.Member{Key: "label", Value: amf3.String("Beta")}),
		),
	}
	data, err := amf3.Serialize(collection)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	values, err := amf3.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	got, err := Options(values[0], "value", "label")
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	want := []Option{{Value: "a", Label: "Alpha"}, {Value: "b", Label: "Beta"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Options = %+v, want %+v", got, want)
	}
}

func TestOptionsErrors(t *testing.T) {
	if _, err := Options(amf3.String("x"), "id", "label"); !errors.Is(err, ErrNotCollection) {
		t.Errorf("Options(string) error = %v, want ErrNotCollection", err)
	}
	if _, err := Options(nil, "id", "label"); !errors.Is(err, ErrNotCollection) {
		t.Errorf("Options(nil) error = %v, want ErrNotCollection", err)
	}

	missing := amf3.NewArray(item(amf3.Integer(1), "ok"))
	if _, err := Options(missing, "id", "nome"); err == nil {
		t.Error("Options with a missing field succeeded")
	}

	nested := amf3.NewArray(amf3.NewAnonymousObject(
		amf3.Member{Key: "id", Value: amf3.NewArray()},
		amf3.Member{Key: "label", Value: amf3.String("x")},
	))
	if _, err := Options(nested, "id", "label"); err == nil {
		t.Error("Options rendered an array as text")
	}
}

func TestRowsRejectsSelfWrappingCollection(t *testing.T) {
	loop := &amf3.Object{Trait: &amf3.Trait{ClassName: "flex.messaging.io.ArrayCollection", Externalizable: true}}
	loop.Data = loop
	if _, err := Rows(loop); !errors.Is(err, ErrNotCollection) {
		t.Errorf("Rows(self-wrapping) error = %v, want ErrNotCollection", err)
	}

	source := amf3.NewAnonymousObject()
	source.Set("source", source)
	if _, err := Rows(source); !errors.Is(err, ErrNotCollection) {
		t.Errorf("Rows(self source) error = %v, want ErrNotCollection", err)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		value amf3.Value
		want  string
	}{
		{amf3.Null{}, ""},
		{amf3.Undefined{}, ""},
		{amf3.Boolean(true), "true"},
		{amf3.Integer(-7), "-7"},
		{amf3.Double(3), "3"},
		{amf3.Double(2.75), "2.75"},
		{amf3.String("Resumo"), "Resumo"},
		{amf3.Date{Millis: 0}, "1970-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		got, err := Render(tt.value)
		if err != nil {
			t.Fatalf("Render(%#v): %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("Render(%#v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFieldOnAssociativeArray(t *testing.T) {
	row := amf3.NewArray()
	row.Set("id", amf3.Integer(4))
	v, ok := Field(row, "id")
	if !ok || v != amf3.Integer(4) {
		t.Errorf("Field = %#v, %v", v, ok)
	}
	if _, ok := Field(amf3.String("x"), "id"); ok {
		t.Error("Field found a member on a string")
	}
}
