package menu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/net2share/go-corelib/tui"

	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/entity"
	"github.com/pabra/hilfmir/pkg/registry"
)

// RepoURL is cloned on the proxy and on every seeker.
const RepoURL = "https://github.com/pabra/hilfmir.git"

// SeekerPackages are the Ubuntu packages a seeker machine needs.
var SeekerPackages = []string{"openssh-server", "x11vnc", "git"}

var snippetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

// printSnippet prints an explanation followed by shell commands for the
// operator to run. Nothing here is executed.
func printSnippet(text string, commands ...string) {
	fmt.Println(text)
	for _, c := range commands {
		fmt.Println("  " + snippetStyle.Render(c))
	}
}

// InitCommands returns the commands that prepare sshUser on the proxy host.
func InitCommands(sshUser string) []string {
	return []string{
		fmt.Sprintf("useradd --no-user-group --gid nogroup --create-home --shell /bin/bash %s", sshUser),
		fmt.Sprintf("mkdir -v -m 0700 /home/%[1]s/.ssh && touch /home/%[1]s/.ssh/authorized_keys && chown -R %[1]s:nogroup /home/%[1]s/.ssh", sshUser),
	}
}

// PrintInitInstructions explains how to set up the proxy host.
func PrintInitInstructions(doc *registry.Document) {
	cmds := InitCommands(doc.SSHUser)
	fmt.Println()
	printSnippet("Add the user on the proxy host.", cmds[0])
	printSnippet("Prepare directories and files.", cmds[1])
	printSnippet(fmt.Sprintf("Install hilfmir (as user %q).", doc.SSHUser),
		fmt.Sprintf("cd ~ && git clone %s hilfmir && cd hilfmir && go build -o hilfmir .", RepoURL))
	printSnippet("Run init.", "./hilfmir --deployment proxy init")
}

// PrintSeekerPrerequisites explains how to prepare a new seeker machine.
func PrintSeekerPrerequisites() {
	fmt.Println()
	printSnippet("On a new seeker machine the following (Ubuntu) packages should be installed:",
		strings.Join(SeekerPackages, " "))
	printSnippet("Clone the repository:",
		fmt.Sprintf("cd ~ && git clone %s .hilfmir && cd .hilfmir", RepoURL))
	printSnippet("Generate a new SSH (RSA) key:",
		`ssh-keygen -b 2048 -t rsa -C "${USER}@hilfmir" -N "" -f ./seeker`)
	printSnippet("Provide the public key:", "cat seeker.pub")
}

// PrintKeygenHint shows how to create a key pair for role.
func PrintKeygenHint(role registry.Role) {
	fmt.Println()
	printSnippet("You could create a new SSH RSA key pair with",
		fmt.Sprintf(`ssh-keygen -b 2048 -t rsa -C "${USER}@hilfmir" -N "" -f ./%[1]s && cat ./%[1]s.pub`, role))
}

// ProxyHelperCommand is the command that adds a helper's entry to the
// proxy user's authorized_keys by hand.
func ProxyHelperCommand(forcedCommand, sshUser string, h entity.NamedHelper) string {
	line := authkeys.FormatLine(forcedCommand, h.PublicKey, h.Name, registry.RoleHelper)
	return fmt.Sprintf("echo '%s' >> /home/%s/.ssh/authorized_keys", line, sshUser)
}

// PrintProxyHelperInstructions explains how to register a helper on the
// proxy when the registry is kept elsewhere.
func PrintProxyHelperInstructions(forcedCommand, sshUser string, h entity.NamedHelper) {
	fmt.Println()
	printSnippet("Add helper key to authorized keys file on ssh proxy.",
		ProxyHelperCommand(forcedCommand, sshUser, h))
}

// SelectHelpers picks helpers by a space separated list of names. A blank
// answer selects all of them.
func SelectHelpers(all []entity.NamedHelper, answer string) ([]entity.NamedHelper, error) {
	names := strings.Fields(answer)
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]entity.NamedHelper, len(all))
	for _, h := range all {
		byName[h.Name] = h
	}

	var unknown []string
	seen := make(map[string]bool, len(names))
	var selected []entity.NamedHelper
	for _, name := range names {
		h, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, h)
	}
	if len(unknown) > 0 {
		return nil, errors.New(errors.KindNotFound,
			fmt.Sprintf("Not all helpers are known: %s.", strings.Join(unknown, " ")),
			"Possible helpers are: "+strings.Join(helperNames(all), " "))
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Name < selected[j].Name })
	return selected, nil
}

// SeekerAccessCommands returns the commands that let helpers log in to a
// seeker machine, for the seeker's own user and for root.
func SeekerAccessCommands(helpers []entity.NamedHelper) (user, root string) {
	lines := make([]string, len(helpers))
	for i, h := range helpers {
		lines[i] = fmt.Sprintf("%s %s@helpers", h.PublicKey, h.Name)
	}
	keys := strings.Join(lines, "\n")

	user = fmt.Sprintf("[ ! -d ~/.ssh ] && mkdir -v ~/.ssh && chmod -v 0700 ~/.ssh; echo '%s' >> ~/.ssh/authorized_keys", keys)
	root = fmt.Sprintf("[ ! -d /root/.ssh ] && mkdir -v /root/.ssh && chmod -v 0700 /root/.ssh; echo '%s' >> /root/.ssh/authorized_keys", keys)
	return user, root
}

// PrintSeekerAccess shows how to grant helpers access to a seeker machine.
func PrintSeekerAccess(userName string, helpers []entity.NamedHelper) {
	if len(helpers) == 0 {
		tui.PrintWarning("No helpers selected, the seeker machine grants no access yet.")
		return
	}
	user, root := SeekerAccessCommands(helpers)
	fmt.Println()
	fmt.Printf("Add helper keys to the authorized_keys file of %q and 'root' as desired.\n", userName)
	printSnippet(fmt.Sprintf("For current user (%q):", userName), user)
	printSnippet("For user 'root' (run as root):", root)
}

// SeekerLine is the listing format read by helpers: name,user_name,port.
func SeekerLine(s entity.NamedSeeker) string {
	return fmt.Sprintf("%s,%s,%d", s.Name, s.UserName, s.Port)
}

func helperNames(helpers []entity.NamedHelper) []string {
	names := make([]string, len(helpers))
	for i, h := range helpers {
		names[i] = h.Name
	}
	return names
}
