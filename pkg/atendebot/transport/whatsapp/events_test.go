package whatsapp

import (
	"testing"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestParseJID(t *testing.T) {
	cases := []struct {
		in      string
		want    types.JID
		wantErr bool
	}{
		{in: "5511999999999@s.whatsapp.net", want: types.NewJID("5511999999999", types.DefaultUserServer)},
		{in: "123456789-987654@g.us", want: types.NewJID("123456789-987654", types.GroupServer)},
		{in: "5511999999999", want: types.NewJID("5511999999999", types.DefaultUserServer)},
		{in: "+55 (11) 99999-9999", want: types.NewJID("5511999999999", types.DefaultUserServer)},
		{in: "  5511999999999  ", want: types.NewJID("5511999999999", types.DefaultUserServer)},
		{in: "", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseJID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseJID(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseJID(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseJID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{name: "nil message", msg: nil, want: ""},
		{name: "empty message", msg: &waE2E.Message{}, want: ""},
		{
			name: "plain conversation",
			msg:  &waE2E.Message{Conversation: proto.String("oi")},
			want: "oi",
		},
		{
			name: "extended text",
			msg: &waE2E.Message{
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("com link")},
			},
			want: "com link",
		},
		{
			name: "image caption",
			msg: &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto da piscina")},
			},
			want: "foto da piscina",
		},
		{
			name: "video caption",
			msg: &waE2E.Message{
				VideoMessage: &waE2E.VideoMessage{Caption: proto.String("tour")},
			},
			want: "tour",
		},
		{
			name: "image without caption",
			msg:  &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractText(tc.msg); got != tc.want {
				t.Errorf("extractText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildTextMessage(t *testing.T) {
	msg := buildTextMessage("olá")
	if got := msg.GetConversation(); got != "olá" {
		t.Errorf("GetConversation = %q", got)
	}
}
