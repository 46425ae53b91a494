package internal

import (
	"testing"
)

func TestSplitTokenRoundTrip(t *testing.T) {
	selector, validator, token, err := NewSplitToken()
	if err != nil {
		t.Fatalf("NewSplitToken error: %v", err)
	}

	gotSelector, gotValidator, err := DecodeSplitToken(token)
	if err != nil {
		t.Fatalf("DecodeSplitToken error: %v", err)
	}
	if gotSelector != selector {
		t.Fatalf("selector mismatch: %q vs %q", gotSelector, selector)
	}
	if gotValidator != validator {
		t.Fatal("validator mismatch")
	}
}

func TestSplitTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		_, _, token, err := NewSplitToken()
		if err != nil {
			t.Fatalf("NewSplitToken error: %v", err)
		}
		if _, ok := seen[token]; ok {
			t.Fatal("duplicate token generated")
		}
		seen[token] = struct{}{}
	}
}

func TestEncodeSplitTokenRejectsBadSelector(t *testing.T) {
	var v Validator
	if _, err := EncodeSplitToken("not a selector", v); err == nil {
		t.Fatal("expected error for malformed selector")
	}
	if _, err := EncodeSplitToken("AAAA", v); err == nil {
		t.Fatal("expected error for short selector")
	}
}

// FuzzDecodeSplitToken exercises token decoding with arbitrary strings.
// Goal: no panics; invalid inputs should return errors cleanly.
func FuzzDecodeSplitToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")
	if _, _, token, err := NewSplitToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		selector, validator, err := DecodeSplitToken(input)
		if err != nil {
			return
		}

		reEncoded, err := EncodeSplitToken(selector, validator)
		if err != nil {
			t.Fatalf("re-encode failed for decoded token: %v", err)
		}
		gotSelector, gotValidator, err := DecodeSplitToken(reEncoded)
		if err != nil || gotSelector != selector || gotValidator != validator {
			t.Fatalf("round trip mismatch for %q", input)
		}
	})
}
