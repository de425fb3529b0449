package domain

import "context"

// ReplyMessage is what the relay sends back to the chat platform.
type ReplyMessage struct {
	Text string    `json:"text"`
	Card *Card     `json:"card,omitempty"`
	Bot  *ReplyBot `json:"bot,omitempty"`
}

type ReplyBot struct {
	Name string `json:"name"`
}

// Card is the rich representation for platforms that render cards.
type Card struct {
	Title    string        `json:"title"`
	Theme    string        `json:"theme"`
	Sections []CardSection `json:"sections"`
}

type CardSection struct {
	ID       int           `json:"id"`
	Title    string        `json:"title,omitempty"`
	Elements []CardElement `json:"elements"`
}

type CardElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Dispatcher delivers a reply through a platform callback channel.
type Dispatcher interface {
	// Resolvable reports whether evt carries enough to address a callback.
	Resolvable(evt InboundEvent) bool
	Deliver(ctx context.Context, evt InboundEvent, reply ReplyMessage) error
}
