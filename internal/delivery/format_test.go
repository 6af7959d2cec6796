package delivery

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeriveTags(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"美人图 Spring Set", "#美人图"},
		{"コスプレ 写真集", "#コスプレ #写真集"},
		{"Text Only Update", ""},
		{"", ""},
		{"猫 and 猫 again", "#猫"},
		{"ひらがなカタカナ漢字", "#ひらがなカタカナ漢字"},
		{"メーカー new", "#メーカー"},
		{"A-美人-B-图", "#美人 #图"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, DeriveTags(tt.title)); diff != "" {
				t.Errorf("DeriveTags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractImages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "none",
			in:   "<p>text</p>",
			want: nil,
		},
		{
			name: "in order",
			in:   `<img src="https://a.example.com/1.jpg" /><p>x</p><img alt="b" src="https://a.example.com/2.jpg">`,
			want: []string{"https://a.example.com/1.jpg", "https://a.example.com/2.jpg"},
		},
		{
			name: "single quotes",
			in:   `<img src='https://a.example.com/3.png'>`,
			want: []string{"https://a.example.com/3.png"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ExtractImages(tt.in)); diff != "" {
				t.Errorf("ExtractImages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatNotification(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "with tags",
			title: "コスプレ 写真集",
			want:  "コスプレ 写真集\n\nhttps://telegra.ph/p\n#コスプレ #写真集",
		},
		{
			name:  "without tags",
			title: "Text Only Update",
			want:  "Text Only Update\n\nhttps://telegra.ph/p\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatNotification(tt.title, "https://telegra.ph/p")); diff != "" {
				t.Errorf("FormatNotification mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
