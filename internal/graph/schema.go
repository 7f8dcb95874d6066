package graph

import (
	"context"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/services"
)

// AccountService is the business surface the schema resolves against.
type AccountService interface {
	CallerLookup
	CreateUser(ctx context.Context, in services.CreateUserInput) (models.Account, error)
	Login(ctx context.Context, email, password string) (services.LoggedUser, error)
	Users(ctx context.Context) ([]models.Account, error)
	UpdateUser(ctx context.Context, userID string, in services.UpdateUserInput) (models.Account, error)
	ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) (services.LoggedUser, error)
	ForgetPassword(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, token, password string) (string, error)
	Posts(ctx context.Context, userID primitive.ObjectID) ([]models.Post, error)
}

// Upload carries a file sent with the GraphQL multipart request format. The
// HTTP handler substitutes a *services.Upload for each mapped variable.
var Upload = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Upload",
	Description: "A file sent with the GraphQL multipart request format.",
	Serialize: func(value interface{}) interface{} {
		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		switch v := value.(type) {
		case *services.Upload:
			return v
		case services.Upload:
			return &v
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		return nil
	},
})

func buildSchema(r *resolver, gate *Gate) (graphql.Schema, error) {
	postType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.Fields{
			"id":    &graphql.Field{Type: graphql.ID, Resolve: postField(func(p models.Post) interface{} { return p.ID.Hex() })},
			"title": &graphql.Field{Type: graphql.String, Resolve: postField(func(p models.Post) interface{} { return p.Title })},
			"body":  &graphql.Field{Type: graphql.String, Resolve: postField(func(p models.Post) interface{} { return p.Body })},
			"createdAt": &graphql.Field{Type: graphql.String, Resolve: postField(func(p models.Post) interface{} {
				if p.CreatedAt.IsZero() {
					return nil
				}
				return p.CreatedAt.UTC().Format(time.RFC3339)
			})},
		},
	})

	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.ID, Resolve: accountField(func(a models.Account) interface{} { return a.User.ID.Hex() })},
			"email":        &graphql.Field{Type: graphql.String, Resolve: accountField(func(a models.Account) interface{} { return a.User.Email })},
			"firstName":    &graphql.Field{Type: graphql.String, Resolve: accountField(func(a models.Account) interface{} { return optional(a.Profile.FirstName) })},
			"middleName":   &graphql.Field{Type: graphql.String, Resolve: accountField(func(a models.Account) interface{} { return optional(a.Profile.MiddleName) })},
			"lastName":     &graphql.Field{Type: graphql.String, Resolve: accountField(func(a models.Account) interface{} { return optional(a.Profile.LastName) })},
			"profileImage": &graphql.Field{Type: graphql.String, Resolve: accountField(func(a models.Account) interface{} { return optional(a.Profile.ProfileImage) })},
			"posts": &graphql.Field{
				Type:    graphql.NewList(postType),
				Resolve: gate.Authenticated(r.userPosts),
			},
		},
	})

	loggedUserType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LoggedUser",
		Fields: graphql.Fields{
			"user": &graphql.Field{Type: userType, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				logged, ok := p.Source.(services.LoggedUser)
				if !ok {
					return nil, nil
				}
				return logged.Account, nil
			}},
			"token": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				logged, ok := p.Source.(services.LoggedUser)
				if !ok {
					return nil, nil
				}
				return logged.Token, nil
			}},
		},
	})

	createUserInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CreateUserInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"firstName": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"lastName":  &graphql.InputObjectFieldConfig{Type: graphql.String},
			"email":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"password":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	updateUserInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UpdateUserInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"email":        &graphql.InputObjectFieldConfig{Type: graphql.String},
			"firstName":    &graphql.InputObjectFieldConfig{Type: graphql.String},
			"lastName":     &graphql.InputObjectFieldConfig{Type: graphql.String},
			"profileImage": &graphql.InputObjectFieldConfig{Type: Upload},
		},
	})
	loginInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UserLoginInputs",
		Fields: graphql.InputObjectConfigFieldMap{
			"email":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	changePasswordInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "ChangePasswordInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"currentPassword": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"newPassword":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"confirmPassword": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me":    &graphql.Field{Type: userType, Resolve: gate.Authenticated(r.me)},
			"users": &graphql.Field{Type: graphql.NewList(userType), Resolve: r.users},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createUser": &graphql.Field{
				Type:    userType,
				Args:    graphql.FieldConfigArgument{"info": &graphql.ArgumentConfig{Type: createUserInput}},
				Resolve: r.createUser,
			},
			"login": &graphql.Field{
				Type:    loggedUserType,
				Args:    graphql.FieldConfigArgument{"info": &graphql.ArgumentConfig{Type: loginInput}},
				Resolve: gate.Throttled("login", r.login),
			},
			"updateUser": &graphql.Field{
				Type:    userType,
				Args:    graphql.FieldConfigArgument{"info": &graphql.ArgumentConfig{Type: updateUserInput}},
				Resolve: gate.Authenticated(r.updateUser),
			},
			"changePassword": &graphql.Field{
				Type:    loggedUserType,
				Args:    graphql.FieldConfigArgument{"info": &graphql.ArgumentConfig{Type: changePasswordInput}},
				Resolve: gate.Authenticated(r.changePassword),
			},
			"forgetPassword": &graphql.Field{
				Type:    graphql.Boolean,
				Args:    graphql.FieldConfigArgument{"email": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: gate.Throttled("forgetPassword", r.forgetPassword),
			},
			"resetPassword": &graphql.Field{
				Type: graphql.String,
				Args: graphql.FieldConfigArgument{
					"token":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: gate.Throttled("resetPassword", r.resetPassword),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
		Types:    []graphql.Type{Upload},
	})
}

func accountField(get func(models.Account) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		a, ok := p.Source.(models.Account)
		if !ok {
			return nil, nil
		}
		return get(a), nil
	}
}

func postField(get func(models.Post) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		post, ok := p.Source.(models.Post)
		if !ok {
			return nil, nil
		}
		return get(post), nil
	}
}

func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Executor runs GraphQL requests against the account schema.
type Executor struct {
	schema graphql.Schema
	log    *zap.Logger
}

// Request is a decoded GraphQL request.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

func NewExecutor(accounts AccountService, limiter Limiter, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := NewGate(accounts, limiter, logger)
	schema, err := buildSchema(&resolver{accounts: accounts, log: logger}, gate)
	if err != nil {
		return nil, err
	}
	return &Executor{schema: schema, log: logger}, nil
}

// Execute runs req. The caller identity is looked up at most once per call.
func (e *Executor) Execute(ctx context.Context, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        withCallerCache(ctx),
	})
}
