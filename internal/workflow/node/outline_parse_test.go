package node

import (
	"testing"
)

func TestDecodeOutline(t *testing.T) {
	t.Run("valid outline", func(t *testing.T) {
		raw := "```json\n" + `{
			"title": "The Complete Guide to Sourdough",
			"subtitle": "From Starter to Loaf",
			"chapters": [
				{"number": 1, "title": "Your First Starter", "summary": "Getting a culture going.", "key_points": ["flour", "water"]},
				{"number": 2, "title": "Feeding and Maintenance", "summary": "Keeping it alive."}
			]
		}` + "\n```"

		outline, err := DecodeOutline(raw)
		if err != nil {
			t.Fatalf("DecodeOutline() error = %v", err)
		}
		if outline.Title != "The Complete Guide to Sourdough" {
			t.Errorf("title = %q", outline.Title)
		}
		if len(outline.Chapters) != 2 {
			t.Fatalf("expected 2 chapters, got %d", len(outline.Chapters))
		}
	})

	t.Run("renumbers out-of-sequence chapters", func(t *testing.T) {
		raw := `{
			"title": "Test Book",
			"chapters": [
				{"number": 0, "title": "First"},
				{"number": 5, "title": "Second"},
				{"number": 2, "title": "Third"}
			]
		}`

		outline, err := DecodeOutline(raw)
		if err != nil {
			t.Fatalf("DecodeOutline() error = %v", err)
		}
		for i, ch := range outline.Chapters {
			if ch.Number != i+1 {
				t.Errorf("chapter at position %d has number %d, want %d", i, ch.Number, i+1)
			}
		}
	})

	t.Run("no chapters", func(t *testing.T) {
		if _, err := DecodeOutline(`{"title":"Empty","chapters":[]}`); err == nil {
			t.Error("expected error for outline without chapters")
		}
	})

	t.Run("empty title", func(t *testing.T) {
		if _, err := DecodeOutline(`{"title":"","chapters":[{"number":1,"title":"A"}]}`); err == nil {
			t.Error("expected error for outline without title")
		}
	})

	t.Run("empty chapter title", func(t *testing.T) {
		if _, err := DecodeOutline(`{"title":"X","chapters":[{"number":1,"title":" "}]}`); err == nil {
			t.Error("expected error for chapter with blank title")
		}
	})

	t.Run("no json at all", func(t *testing.T) {
		if _, err := DecodeOutline("I am unable to generate an outline."); err == nil {
			t.Error("expected error for non-json output")
		}
	})
}

func TestDecodeMarketing(t *testing.T) {
	t.Run("valid package", func(t *testing.T) {
		raw := `{
			"email_templates": ["Subject: Launch\n\nIt's here."],
			"social_posts": ["New book out now"],
			"sales_page": "Buy the book."
		}`

		pkg, err := DecodeMarketing(raw)
		if err != nil {
			t.Fatalf("DecodeMarketing() error = %v", err)
		}
		if len(pkg.EmailTemplates) != 1 || len(pkg.SocialPosts) != 1 {
			t.Errorf("unexpected package shape: %+v", pkg)
		}
	})

	t.Run("empty package rejected", func(t *testing.T) {
		if _, err := DecodeMarketing(`{"email_templates":[],"social_posts":[],"sales_page":""}`); err == nil {
			t.Error("expected error for empty marketing package")
		}
	})
}
