package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/wolfman30/wa-relay/internal/messaging"
	"github.com/wolfman30/wa-relay/internal/session"
)

// replyServers are the chat servers an inbound message can be answered on.
var replyServers = map[string]struct{}{
	types.DefaultUserServer: {},
	types.HiddenUserServer:  {},
	types.GroupServer:       {},
}

// toJID converts a recipient into a chat JID. A normalized "<digits>@c.us"
// address becomes a user JID; any other address must be a chat JID as
// rendered by chatAddress, such as "<lid>@lid" or "<id>@g.us".
func toJID(recipient string) (types.JID, error) {
	if strings.HasSuffix(recipient, messaging.RecipientSuffix) {
		if !messaging.IsValidRecipient(recipient) {
			return types.EmptyJID, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
		}
		return types.NewJID(messaging.PhoneFromRecipient(recipient), types.DefaultUserServer), nil
	}

	jid, err := types.ParseJID(recipient)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, recipient, err)
	}
	if _, ok := replyServers[jid.Server]; !ok || jid.User == "" {
		return types.EmptyJID, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	return jid.ToNonAD(), nil
}

// chatAddress renders a chat JID the way clients address it: phone number
// chats use the "@c.us" form, anything else keeps its JID string. toJID
// accepts both forms back.
func chatAddress(jid types.JID) string {
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		return recipientFromPhone(jid.User)
	}
	return jid.String()
}

func mediaTypeFor(mimetype string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimetype, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimetype, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func textMessage(body string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(body)}
}

// mediaMessage builds the message for an uploaded attachment. Audio messages
// carry no caption field, so the caption is dropped for them.
func mediaMessage(media session.MediaAttachment, caption string, up whatsmeow.UploadResponse, size uint64) *waE2E.Message {
	mimetype := media.MimeType
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	switch mediaTypeFor(mimetype) {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optionalString(caption),
			Mimetype:      proto.String(mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optionalString(caption),
			Mimetype:      proto.String(mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	default:
		label := media.Label
		if label == "" {
			label = "Media"
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optionalString(caption),
			FileName:      proto.String(label),
			Title:         proto.String(label),
			Mimetype:      proto.String(mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}}
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}

// messageText extracts the plain text body of an inbound message, if any.
func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}
