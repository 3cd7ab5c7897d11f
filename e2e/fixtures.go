// CLAUDE:SUMMARY E2E fixtures: players with identity-provider ids and the seed file loaded before the server starts
package e2e

// FixtureUser is a player as the identity provider knows them.
type FixtureUser struct {
	ID       string
	Username string
}

var Users = struct {
	Alice FixtureUser
	Bob   FixtureUser
	Carol FixtureUser
}{
	Alice: FixtureUser{ID: "user_alice", Username: "alice"},
	Bob:   FixtureUser{ID: "user_bob", Username: "bob"},
	Carol: FixtureUser{ID: "user_carol", Username: "carol"},
}

// seedTOML has three prompts and one offline judge model.
const seedTOML = `default_model = 1

[[prompts]]
id = 1
title = "Hello, Go"
description = "Find resources that teach a beginner to write and run a first Go program."
level = 1

[[prompts]]
id = 2
title = "Channels"
description = "Find resources that explain buffered and unbuffered channels with examples."
level = 2

[[prompts]]
id = 3
title = "Generics"
description = "Find resources that show how to write generic functions with type constraints."
level = 3

[[models]]
id = 1
provider = "fake"
name = "offline-judge"
`
