// Command issue-token signs a development JWT in the shape the identity provider issues.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		userID   string
		role     string
		groups   string
		ttl      time.Duration
		askToken bool
	)
	flag.StringVar(&userID, "user", "", "User ID placed in the sub claim")
	flag.StringVar(&role, "role", string(model.RoleStudent), "Role: student, teacher or admin")
	flag.StringVar(&groups, "groups", "", "Comma-separated group labels")
	flag.DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	flag.BoolVar(&askToken, "ask-secret", false, "Prompt for the signing secret instead of reading JWT_SECRET")
	flag.Parse()

	cfg := config.Load()

	if userID == "" {
		fmt.Print("Enter User ID: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		userID = strings.TrimSpace(line)
	}

	if askToken {
		fmt.Fprint(os.Stderr, "Enter Signing Secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	var groupList []string
	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groupList = append(groupList, g)
		}
	}

	token, err := service.NewAuthService(cfg).IssueToken(userID, model.Role(role), groupList, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
