// Package category defines the closed set of message categories and their
// family classification. Handlers dispatch on Family rather than probing
// string prefixes.
package category

// Category identifies the payload kind of an envelope or message.
type Category string

const (
	PlainText    Category = "PLAIN_TEXT"
	PlainImage   Category = "PLAIN_IMAGE"
	PlainVideo   Category = "PLAIN_VIDEO"
	PlainData    Category = "PLAIN_DATA"
	PlainAudio   Category = "PLAIN_AUDIO"
	PlainSticker Category = "PLAIN_STICKER"
	PlainContact Category = "PLAIN_CONTACT"
	PlainJSON    Category = "PLAIN_JSON"

	SignalText    Category = "SIGNAL_TEXT"
	SignalImage   Category = "SIGNAL_IMAGE"
	SignalVideo   Category = "SIGNAL_VIDEO"
	SignalData    Category = "SIGNAL_DATA"
	SignalAudio   Category = "SIGNAL_AUDIO"
	SignalSticker Category = "SIGNAL_STICKER"
	SignalContact Category = "SIGNAL_CONTACT"
	SignalKey     Category = "SIGNAL_KEY"

	SystemConversation    Category = "SYSTEM_CONVERSATION"
	SystemAccountSnapshot Category = "SYSTEM_ACCOUNT_SNAPSHOT"
	SystemSession         Category = "SYSTEM_SESSION"

	AppCard        Category = "APP_CARD"
	AppButtonGroup Category = "APP_BUTTON_GROUP"

	CallOffer     Category = "WEBRTC_AUDIO_OFFER"
	CallAnswer    Category = "WEBRTC_AUDIO_ANSWER"
	CallCancel    Category = "WEBRTC_AUDIO_CANCEL"
	CallDecline   Category = "WEBRTC_AUDIO_DECLINE"
	CallBusy      Category = "WEBRTC_AUDIO_BUSY"
	CallEnd       Category = "WEBRTC_AUDIO_END"
	CallFailed    Category = "WEBRTC_AUDIO_FAILED"
	CallCandidate Category = "WEBRTC_ICE_CANDIDATE"

	Recall Category = "MESSAGE_RECALL"
)

// Family groups categories for handler dispatch.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyPlain
	FamilySignal
	FamilySystem
	FamilyApp
	FamilyCall
	FamilyRecall
)

var families = map[Category]Family{
	PlainText:    FamilyPlain,
	PlainImage:   FamilyPlain,
	PlainVideo:   FamilyPlain,
	PlainData:    FamilyPlain,
	PlainAudio:   FamilyPlain,
	PlainSticker: FamilyPlain,
	PlainContact: FamilyPlain,
	PlainJSON:    FamilyPlain,

	SignalText:    FamilySignal,
	SignalImage:   FamilySignal,
	SignalVideo:   FamilySignal,
	SignalData:    FamilySignal,
	SignalAudio:   FamilySignal,
	SignalSticker: FamilySignal,
	SignalContact: FamilySignal,
	SignalKey:     FamilySignal,

	SystemConversation:    FamilySystem,
	SystemAccountSnapshot: FamilySystem,
	SystemSession:         FamilySystem,

	AppCard:        FamilyApp,
	AppButtonGroup: FamilyApp,

	CallOffer:     FamilyCall,
	CallAnswer:    FamilyCall,
	CallCancel:    FamilyCall,
	CallDecline:   FamilyCall,
	CallBusy:      FamilyCall,
	CallEnd:       FamilyCall,
	CallFailed:    FamilyCall,
	CallCandidate: FamilyCall,

	Recall: FamilyRecall,
}

// FamilyOf returns the family of c, or FamilyUnknown for categories outside
// the recognized set.
func FamilyOf(c Category) Family {
	return families[c]
}

// Legal reports whether c belongs to the recognized category set. Envelopes
// carrying an illegal category are routed to the bad-message path.
func Legal(c Category) bool {
	_, ok := families[c]
	return ok
}

// Kind tags the content shape shared across the plain and signal families.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindImage
	KindVideo
	KindData
	KindAudio
	KindSticker
	KindContact
)

var kinds = map[Category]Kind{
	PlainText:     KindText,
	SignalText:    KindText,
	PlainImage:    KindImage,
	SignalImage:   KindImage,
	PlainVideo:    KindVideo,
	SignalVideo:   KindVideo,
	PlainData:     KindData,
	SignalData:    KindData,
	PlainAudio:    KindAudio,
	SignalAudio:   KindAudio,
	PlainSticker:  KindSticker,
	SignalSticker: KindSticker,
	PlainContact:  KindContact,
	SignalContact: KindContact,
}

// KindOf returns the content kind of c, KindNone when c carries no
// plain/signal content body.
func KindOf(c Category) Kind {
	return kinds[c]
}

// IsMedia reports whether c carries an attachment body (image, video, file
// or audio).
func IsMedia(c Category) bool {
	switch kinds[c] {
	case KindImage, KindVideo, KindData, KindAudio:
		return true
	}
	return false
}

// IsCallCompletion reports whether c terminates a pending call offer.
func IsCallCompletion(c Category) bool {
	switch c {
	case CallAnswer, CallCancel, CallDecline, CallBusy, CallEnd, CallFailed:
		return true
	}
	return false
}
