package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderLoginUsesLabel(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, http.StatusOK, "pages/login.html", TemplateData{Title: "Sign in", CSRFToken: "tok"}))

	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, `<label for="email" class="text-sm font-medium leading-none">Email</label>`)
	assert.Contains(t, body, `<label for="password"`)
	assert.Contains(t, body, `value="tok"`)
}

func TestRenderLabelMergesClasses(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.templates.ExecuteTemplate(rec, "components/label", Label{For: "name", Text: "Name <b>", Class: "sr-only  text-sm"})
	require.NoError(t, err)
	assert.Equal(t, `<label for="name" class="text-sm font-medium leading-none sr-only">Name &lt;b&gt;</label>`, rec.Body.String())
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.Error(t, engine.Render(rec, http.StatusOK, "pages/missing.html", TemplateData{}))
	assert.Empty(t, rec.Body.String())
}

func TestClassNames(t *testing.T) {
	assert.Equal(t, "a b c", ClassNames("a  b", "", "b c", " "))
	assert.Equal(t, "", ClassNames())
}
