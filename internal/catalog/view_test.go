package catalog

import (
	"errors"
	"testing"

	"github.com/hitoshi/tipflix/internal/model"
)

func TestController_InitialState(t *testing.T) {
	c := NewController()

	if c.View() != ViewHome {
		t.Errorf("View() = %v, want home", c.View())
	}
	if _, ok := c.Selected(); ok {
		t.Error("expected no selection")
	}
	if c.ActiveServer() != model.Server1 {
		t.Errorf("ActiveServer() = %v, want server1", c.ActiveServer())
	}
	if c.TakeScrollReset() {
		t.Error("expected no pending scroll reset")
	}
}

func TestController_SelectMovieFromAnyView(t *testing.T) {
	for _, from := range []View{ViewHome, ViewCategories, ViewSearch} {
		t.Run(from.String(), func(t *testing.T) {
			c := NewController()
			if err := c.Navigate(from); err != nil {
				t.Fatalf("Navigate() error = %v", err)
			}
			c.SelectServer(model.Server3)

			c.SelectMovie(model.Movie{ID: "m1", Title: "Nebula Drift"})

			if c.View() != ViewDetails {
				t.Errorf("View() = %v, want details", c.View())
			}
			m, ok := c.Selected()
			if !ok || m.ID != "m1" {
				t.Errorf("Selected() = %+v, %v", m, ok)
			}
			if c.ActiveServer() != model.Server1 {
				t.Errorf("ActiveServer() = %v, want server1 after selection", c.ActiveServer())
			}
			if !c.TakeScrollReset() {
				t.Error("expected scroll reset on selection")
			}
			if c.TakeScrollReset() {
				t.Error("scroll reset must be consumed once")
			}
		})
	}
}

func TestController_SelectMovieKeepsCopy(t *testing.T) {
	c := NewController()
	genres := []string{"Drama"}
	c.SelectMovie(model.Movie{ID: "m1", Genres: genres})

	genres[0] = "Changed"

	m, _ := c.Selected()
	if m.Genres[0] != "Drama" {
		t.Errorf("selected genres = %v, want copy", m.Genres)
	}
}

func TestController_Back(t *testing.T) {
	c := NewController()
	c.SelectMovie(model.Movie{ID: "m1"})
	c.TakeScrollReset()

	if !c.Back() {
		t.Fatal("Back() = false from details")
	}
	if c.View() != ViewHome {
		t.Errorf("View() = %v, want home", c.View())
	}
	if !c.TakeScrollReset() {
		t.Error("expected scroll reset on back")
	}
	if _, ok := c.Selected(); !ok {
		t.Error("back must not clear the selection")
	}

	if c.Back() {
		t.Error("Back() outside details should be a no-op")
	}
}

func TestController_NavigateHasNoSideEffects(t *testing.T) {
	c := NewController()

	if err := c.Navigate(ViewSearch); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if c.View() != ViewSearch {
		t.Errorf("View() = %v, want search", c.View())
	}
	if c.TakeScrollReset() {
		t.Error("navigation must not reset scroll")
	}
}

func TestController_NavigateRejectsDetails(t *testing.T) {
	c := NewController()

	err := c.Navigate(ViewDetails)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidView {
		t.Errorf("Navigate(details) error = %v, want INVALID_VIEW", err)
	}
	if c.View() != ViewHome {
		t.Errorf("View() = %v, want unchanged", c.View())
	}
}

func TestController_ActivateLogo(t *testing.T) {
	c := NewController()
	_ = c.Navigate(ViewCategories)

	c.ActivateLogo()

	if c.View() != ViewHome {
		t.Errorf("View() = %v, want home", c.View())
	}
	if !c.TakeScrollReset() {
		t.Error("expected scroll reset on logo activation")
	}
}

func TestParseNavigableView(t *testing.T) {
	tests := []struct {
		in      string
		want    View
		wantErr bool
	}{
		{"home", ViewHome, false},
		{"Categories", ViewCategories, false},
		{" search ", ViewSearch, false},
		{"details", ViewHome, true},
		{"", ViewHome, true},
	}
	for _, tt := range tests {
		got, err := ParseNavigableView(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNavigableView(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseNavigableView(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
