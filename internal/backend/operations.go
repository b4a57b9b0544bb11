package backend

// Operation is a named GraphQL document and the data field it resolves
type Operation struct {
	Name     string
	Field    string
	Document string
}

// Request builds a Request for the operation
func (o Operation) Request(vars map[string]any) Request {
	return Request{
		Query:         o.Document,
		OperationName: o.Name,
		Variables:     vars,
	}
}

const userFields = `
      id
      email
      name
      role
      avatarUrl
      bio
      createdAt
      updatedAt`

var (
	OpLogin = Operation{
		Name:  "Login",
		Field: "login",
		Document: `mutation Login($loginInput: LoginInput!) {
  login(loginInput: $loginInput) {
    user {` + userFields + `
    }
    accessToken
    success
    message
  }
}`,
	}

	OpRefreshToken = Operation{
		Name:  "RefreshToken",
		Field: "refreshToken",
		Document: `mutation RefreshToken {
  refreshToken {
    accessToken
    success
  }
}`,
	}

	OpLogout = Operation{
		Name:  "Logout",
		Field: "logout",
		Document: `mutation Logout {
  logout {
    success
    message
  }
}`,
	}

	OpGetCurrentUser = Operation{
		Name:  "GetCurrentUser",
		Field: "getCurrentUser",
		Document: `query GetCurrentUser {
  getCurrentUser {` + userFields + `
  }
}`,
	}

	OpGetPosts = Operation{
		Name:  "GetPosts",
		Field: "getPosts",
		Document: `query GetPosts {
  getPosts {
    id
    title
    content
    status
    tags
    createdAt
    updatedAt
  }
}`,
	}
)

// LoginVariables wraps credentials the way the Login mutation expects
func LoginVariables(email, password string) map[string]any {
	return map[string]any{
		"loginInput": map[string]any{
			"email":    email,
			"password": password,
		},
	}
}
