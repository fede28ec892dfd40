package category

import "testing"

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		cat    Category
		family Family
	}{
		{PlainText, FamilyPlain},
		{PlainJSON, FamilyPlain},
		{SignalSticker, FamilySignal},
		{SignalKey, FamilySignal},
		{SystemConversation, FamilySystem},
		{SystemAccountSnapshot, FamilySystem},
		{SystemSession, FamilySystem},
		{AppCard, FamilyApp},
		{AppButtonGroup, FamilyApp},
		{CallOffer, FamilyCall},
		{CallCandidate, FamilyCall},
		{Recall, FamilyRecall},
		{Category("FUTURE_HOLOGRAM"), FamilyUnknown},
		{Category(""), FamilyUnknown},
	}
	for _, tt := range tests {
		if got := FamilyOf(tt.cat); got != tt.family {
			t.Errorf("FamilyOf(%s) = %d, want %d", tt.cat, got, tt.family)
		}
	}
}

func TestLegal(t *testing.T) {
	if !Legal(PlainText) {
		t.Error("PLAIN_TEXT should be legal")
	}
	if Legal(Category("PLAIN_HOLOGRAM")) {
		t.Error("unknown category should not be legal")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		cat  Category
		kind Kind
	}{
		{PlainText, KindText},
		{SignalText, KindText},
		{PlainImage, KindImage},
		{SignalVideo, KindVideo},
		{PlainData, KindData},
		{SignalAudio, KindAudio},
		{PlainSticker, KindSticker},
		{SignalContact, KindContact},
		{SignalKey, KindNone},
		{SystemConversation, KindNone},
		{Recall, KindNone},
	}
	for _, tt := range tests {
		if got := KindOf(tt.cat); got != tt.kind {
			t.Errorf("KindOf(%s) = %d, want %d", tt.cat, got, tt.kind)
		}
	}
}

func TestIsMedia(t *testing.T) {
	for _, c := range []Category{PlainImage, PlainVideo, SignalData, SignalAudio} {
		if !IsMedia(c) {
			t.Errorf("IsMedia(%s) = false, want true", c)
		}
	}
	for _, c := range []Category{PlainText, PlainSticker, SignalContact, AppCard} {
		if IsMedia(c) {
			t.Errorf("IsMedia(%s) = true, want false", c)
		}
	}
}

func TestIsCallCompletion(t *testing.T) {
	for _, c := range []Category{CallAnswer, CallCancel, CallDecline, CallBusy, CallEnd, CallFailed} {
		if !IsCallCompletion(c) {
			t.Errorf("IsCallCompletion(%s) = false, want true", c)
		}
	}
	if IsCallCompletion(CallOffer) {
		t.Error("offer is not a completion")
	}
	if IsCallCompletion(CallCandidate) {
		t.Error("candidate is not a completion")
	}
}
