package reminder

import (
	"strings"

	"gopkg.in/telebot.v3"
)

// Sender is the outbound messaging surface the schedulers need. Tests
// substitute a fake; production uses TelebotSender.
type Sender interface {
	SendMessage(userID int64, text string, buttons []Button) error
	SendAlbum(userID int64, photos []string, caption string) error
}

type TelebotSender struct {
	B *telebot.Bot
}

func (s *TelebotSender) SendMessage(userID int64, text string, buttons []Button) error {
	to := &telebot.User{ID: userID}
	markup := buildMarkup(buttons)
	if markup == nil {
		_, err := s.B.Send(to, text)
		return err
	}
	_, err := s.B.Send(to, text, markup)
	return err
}

func (s *TelebotSender) SendAlbum(userID int64, photos []string, caption string) error {
	album := make(telebot.Album, 0, len(photos))
	for i, ref := range photos {
		photo := &telebot.Photo{File: photoRef(ref)}
		if i == len(photos)-1 {
			photo.Caption = caption
		}
		album = append(album, photo)
	}
	_, err := s.B.SendAlbum(&telebot.User{ID: userID}, album)
	return err
}

func buildMarkup(buttons []Button) *telebot.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	menu := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(buttons))
	for _, b := range buttons {
		btn := telebot.Btn{Text: b.Text, Unique: b.Unique, URL: b.URL}
		rows = append(rows, menu.Row(btn))
	}
	menu.Inline(rows...)
	return menu
}

func photoRef(ref string) telebot.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return telebot.FromURL(ref)
	}
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "/") {
		return telebot.FromDisk(ref)
	}
	return telebot.File{FileID: ref}
}
