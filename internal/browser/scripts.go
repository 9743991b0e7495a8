package browser

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Every script is a self-contained expression so both drivers can evaluate it unchanged.

const pageHeightScript = `(document.documentElement.scrollHeight || document.body.scrollHeight || 0)`

func scrollScript(dir Direction) string {
	switch dir {
	case ScrollUp:
		return `window.scrollBy(0, -window.innerHeight); true`
	case ScrollTop:
		return `window.scrollTo(0, 0); true`
	case ScrollBottom:
		return `window.scrollTo(0, document.body.scrollHeight); true`
	default:
		return `window.scrollBy(0, window.innerHeight); true`
	}
}

func zoomScript(factor float64) string {
	return fmt.Sprintf(`document.body.style.zoom = '%s'; true`, strconv.FormatFloat(ClampZoom(factor), 'f', -1, 64))
}

// textInRegionScript walks text nodes and keeps those whose parent element
// starts inside the band. Hidden elements (offsetParent null) are skipped.
func textInRegionScript(topPct, bottomPct float64) string {
	return fmt.Sprintf(`(function(topPct, bottomPct) {
	var h = document.documentElement.scrollHeight || document.body.scrollHeight;
	var y0 = (topPct / 100) * h;
	var y1 = (bottomPct / 100) * h;
	var out = [];
	var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, null, false);
	var node;
	while ((node = walker.nextNode())) {
		var el = node.parentElement;
		if (!el || el.offsetParent === null) continue;
		var docY = el.getBoundingClientRect().top + window.scrollY;
		if (docY >= y0 && docY <= y1) out.push(node.textContent.trim());
	}
	return out.filter(Boolean).join('\n');
})(%s, %s)`, jsNumber(topPct), jsNumber(bottomPct))
}

// Elements that carry each ARIA role implicitly or explicitly.
var roleSelectors = map[string]string{
	"link":      `a[href], [role="link"]`,
	"button":    `button, [role="button"], input[type="submit"], input[type="button"]`,
	"searchbox": `input[type="search"], [role="searchbox"], [role="combobox"]`,
	"tab":       `[role="tab"]`,
	"heading":   `h1, h2, h3, h4, h5, h6, [role="heading"]`,
}

// clickByRoleScript clicks the first visible element with the role whose
// accessible name equals text, or failing that contains it. Evaluates to a bool.
func clickByRoleScript(role, text string) string {
	sel, ok := roleSelectors[role]
	if !ok {
		sel = fmt.Sprintf(`[role=%s]`, jsString(role))
	}
	return fmt.Sprintf(`(function(sel, want) {
	want = want.trim().toLowerCase();
	var name = function(el) {
		return (el.getAttribute('aria-label') || el.innerText || el.value || '').replace(/\s+/g, ' ').trim().toLowerCase();
	};
	var els = Array.prototype.filter.call(document.querySelectorAll(sel), function(el) { return el.offsetParent !== null; });
	var hit = els.find(function(el) { return name(el) === want; }) ||
		els.find(function(el) { return name(el).indexOf(want) !== -1; });
	if (!hit) return false;
	hit.scrollIntoView({block: 'center'});
	hit.click();
	return true;
})(%s, %s)`, jsString(sel), jsString(text))
}

// clickByTextScript clicks the innermost visible element whose text contains text.
func clickByTextScript(text string) string {
	return fmt.Sprintf(`(function(want) {
	want = want.trim().toLowerCase();
	var best = null;
	document.querySelectorAll('body *').forEach(function(el) {
		if (el.offsetParent === null) return;
		var t = (el.innerText || '').trim().toLowerCase();
		if (t.indexOf(want) === -1) return;
		if (!best || t.length <= (best.innerText || '').trim().length) best = el;
	});
	if (!best) return false;
	var target = best.closest('a, button, [role="link"], [role="button"], [role="tab"]') || best;
	target.scrollIntoView({block: 'center'});
	target.click();
	return true;
})(%s)`, jsString(text))
}

// focusSearchboxScript focuses a search input found by role or placeholder.
const focusSearchboxScript = `(function() {
	var el = document.querySelector('input[type="search"], [role="searchbox"], input[placeholder*="Search" i]');
	if (!el) return false;
	el.focus();
	if ('value' in el) el.value = '';
	return true;
})()`

func jsString(s string) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func jsNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
