package vexdb

import "github.com/vexdb/vexdb-go/protocol"

// Command names understood by the server. The transport does not interpret
// them beyond the authentication exemption; they are listed here so the
// Client façade and the Connection agree on spelling.
const (
	cmdAuth     = "auth"
	cmdPing     = "ping"
	cmdUseSpace = "use_space"

	cmdCreateSpace   = "create_space"
	cmdDropSpace     = "drop_space"
	cmdListSpaces    = "list_spaces"
	cmdDescribeSpace = "describe_space"

	cmdPut    = "put"
	cmdGet    = "get"
	cmdDelete = "delete"

	cmdInsertVector = "insert_vector"
	cmdSearchTopK   = "search_topk"
	cmdRangeSearch  = "range_search"
	cmdGetVector    = "get_vector"

	cmdCreateUser     = "create_user"
	cmdDropUser       = "drop_user"
	cmdChangePassword = "change_password"
	cmdListUsers      = "list_users"
)

// requiresAuth reports whether a command needs an authenticated session.
// Authentication itself and the liveness probe are exempt.
func requiresAuth(name string) bool {
	return name != cmdAuth && name != cmdPing
}

func newAuthCommand(username, password string) *protocol.Command {
	return protocol.NewCommand(cmdAuth).
		AddString("user", username).
		AddString("password", password)
}

func newPingCommand() *protocol.Command {
	return protocol.NewCommand(cmdPing)
}

func newUseSpaceCommand(name string) *protocol.Command {
	return protocol.NewCommand(cmdUseSpace).AddString("name", name)
}
