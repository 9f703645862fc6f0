// Package bootstrap seeds the first administrator account from the terminal.
package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/shared"
)

const generatedPasswordBytes = 12

type AdminCreator interface {
	CreateInitialAdmin(ctx context.Context, username, name string, password []byte) (*models.User, error)
}

// Run asks for the admin's username, display name and password, then
// creates the account. An empty password is replaced by a random one that
// is printed once.
func Run(ctx context.Context, reader *bufio.Reader, w io.Writer, c AdminCreator) (*models.User, error) {
	username, err := GetSimpleText(reader, "Admin username", w)
	if err != nil {
		return nil, err
	}
	name, err := GetSimpleText(reader, "Display name", w)
	if err != nil {
		return nil, err
	}

	password, err := GetPassword(w)
	if err != nil {
		return nil, err
	}
	defer func() { shared.WipeByteArray(password) }()

	if len(password) == 0 {
		generated, err := shared.MakeRandHexString(generatedPasswordBytes)
		if err != nil {
			return nil, err
		}
		password = []byte(generated)
		fmt.Fprintf(w, "Generated password: %s\n", generated)
	}

	user, err := c.CreateInitialAdmin(ctx, username, name, password)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "Administrator %q created\n", user.UserName)
	return user, nil
}
