package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"shop.example.com":                 "shop.example.com",
		"  https://Shop.Example.com/  ":    "shop.example.com",
		"http://shop.example.com/products": "shop.example.com",
		"shop.example.com?x=1":             "shop.example.com",
		"":                                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), "input %q", in)
	}
}

func TestSaveBotSettings_KeepsTokenWhenBlank(t *testing.T) {
	sess := mapSession{}
	SaveBotSettings(sess, BotSettings{BotName: "Ava", ShopDomain: "a.example.com", StorefrontToken: "first"})
	SaveBotSettings(sess, BotSettings{BotName: "Bea", ShopDomain: "b.example.com"})

	got := LoadBotSettings(sess)
	assert.Equal(t, BotSettings{BotName: "Bea", ShopDomain: "b.example.com", StorefrontToken: "first"}, got)
}

func TestBotSettings_Complete(t *testing.T) {
	assert.False(t, BotSettings{}.Complete())
	assert.False(t, BotSettings{BotName: "Ava"}.Complete())
	assert.False(t, BotSettings{BotName: " ", ShopDomain: "a.example.com"}.Complete())
	assert.True(t, BotSettings{BotName: "Ava", ShopDomain: "a.example.com"}.Complete())
}

func TestBotSettings_Resolve(t *testing.T) {
	got := BotSettings{BotName: "Ava"}.Resolve(testDefaults)
	assert.Equal(t, BotSettings{
		BotName:         "Ava",
		ShopDomain:      "example.myshopify.com",
		StorefrontToken: "default-token",
	}, got)
}
