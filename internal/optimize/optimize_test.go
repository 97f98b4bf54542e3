package optimize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renderx/prerender-gateway/internal/config"
	"github.com/renderx/prerender-gateway/internal/optimize"
)

func defaultOptions() config.ResolvedOptimizerOptions {
	return config.ResolvedOptimizerOptions{
		RemoveDataAttributes:  true,
		RemoveAriaAttributes:  true,
		RemoveStyleAttributes: true,
		RemoveInlineStyles:    true,
	}
}

func TestPreservesLDJSONDropsOtherScripts(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<script type="application/ld+json">{"a":1}</script>
		<script src="/app.js"></script>
	</head><body><div id="root">hi</div></body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.Contains(t, out, `application/ld+json`)
	assert.NotContains(t, out, "/app.js")
}

func TestDropsNoiseLinkRels(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<link rel="preload" href="/a.js">
		<link rel="stylesheet" href="/a.css">
		<link rel="icon" href="/a.png">
	</head><body>x</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, "preload")
	assert.NotContains(t, out, "stylesheet")
	assert.Contains(t, out, "icon")
}

func TestKeepsOnlyFirstManifestAndIcon(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<link rel="manifest" href="/one.json">
		<link rel="manifest" href="/two.json">
		<link rel="icon" href="/one.png">
		<link rel="icon" href="/two.png">
	</head><body>x</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.Equal(t, 1, strings.Count(out, "rel=\"manifest\""))
	assert.Equal(t, 1, strings.Count(out, `rel="icon"`))
	assert.Contains(t, out, "one.json")
	assert.Contains(t, out, "one.png")
}

func TestAppleTouchIconPrefers180(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<link rel="apple-touch-icon" sizes="57x57" href="/small.png">
		<link rel="apple-touch-icon" sizes="180x180" href="/big.png">
	</head><body>x</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.Contains(t, out, "big.png")
	assert.NotContains(t, out, "small.png")
}

func TestRemovesMsapplicationAndHeadCountMeta(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<meta name="msapplication-TileColor" content="#fff">
		<meta name="next-head-count" content="3">
		<meta name="description" content="keep me">
	</head><body>x</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, "msapplication")
	assert.NotContains(t, out, "next-head-count")
	assert.Contains(t, out, "keep me")
}

func TestStripsDataAriaOnAndStyleAttributes(t *testing.T) {
	t.Parallel()
	in := `<html><body>
		<div data-testid="x" data-foo="bar" aria-label="l" onclick="x()" style="color:red">hi</div>
	</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, "data-testid")
	assert.NotContains(t, out, "data-foo")
	assert.NotContains(t, out, "aria-label")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "style=")
}

func TestMetaKeepsDataAttributes(t *testing.T) {
	t.Parallel()
	in := `<html><head><meta data-keep="yes" name="description" content="d"></head><body>x</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.Contains(t, out, "data-keep")
}

func TestRemovesCommentsAndNoscript(t *testing.T) {
	t.Parallel()
	in := `<html><body><!-- drop me --><noscript>fallback</noscript><div>x</div></body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, "drop me")
	assert.NotContains(t, out, "noscript")
}

func TestRemovesHiddenElements(t *testing.T) {
	t.Parallel()
	in := `<html><body>
		<div hidden>a</div>
		<div style="display:none">b</div>
		<div style="visibility: hidden">c</div>
		<div>keep</div>
	</body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, ">a<")
	assert.NotContains(t, out, ">b<")
	assert.NotContains(t, out, ">c<")
	assert.Contains(t, out, "keep")
}

func TestRemovesEmptyBodyElementsExceptVoidSet(t *testing.T) {
	t.Parallel()
	in := `<html><body><span></span><br><div>content</div></body></html>`
	out := optimize.Optimize(in, defaultOptions())
	assert.NotContains(t, out, "<span>")
	assert.Contains(t, out, "<br")
	assert.Contains(t, out, "content")
}

func TestIdempotent(t *testing.T) {
	t.Parallel()
	in := `<html><head>
		<script src="/a.js"></script>
		<style>.a{color:red}</style>
		<meta name="msapplication-x" content="y">
	</head><body>
		<!-- comment -->
		<div data-testid="t" aria-hidden="true" onclick="f()" style="color:red">  hello   world  </div>
		<span></span>
	</body></html>`
	once := optimize.Optimize(in, defaultOptions())
	twice := optimize.Optimize(once, defaultOptions())
	assert.Equal(t, once, twice)
}

func TestFailurePolicyReturnsOriginalOnGarbage(t *testing.T) {
	t.Parallel()
	in := "not even close to html <<<>>"
	out := optimize.Optimize(in, defaultOptions())
	assert.NotEmpty(t, out)
}

func TestRemoveInlineStylesDisabledKeepsStyleTag(t *testing.T) {
	t.Parallel()
	opts := defaultOptions()
	opts.RemoveInlineStyles = false
	in := `<html><head><style>.a{color:red}</style></head><body>x</body></html>`
	out := optimize.Optimize(in, opts)
	assert.Contains(t, out, "<style>")
}
