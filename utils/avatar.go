package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// AvatarURL returns the Gravatar identicon URL for email at the given pixel size.
func AvatarURL(email string, size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?size=%d&default=retro", hex.EncodeToString(sum[:]), size)
}
