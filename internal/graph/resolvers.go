package graph

import (
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/services"
)

type resolver struct {
	accounts AccountService
	log      *zap.Logger
}

var errMissingInfo = &Error{Message: "info is required", Code: services.KindValidation.Code()}

func (r *resolver) me(p graphql.ResolveParams) (interface{}, error) {
	account, _ := CallerFromContext(p.Context)
	return account, nil
}

func (r *resolver) users(p graphql.ResolveParams) (interface{}, error) {
	accounts, err := r.accounts.Users(p.Context)
	if err != nil {
		return nil, clientError(r.log, "users", err)
	}
	return accounts, nil
}

func (r *resolver) userPosts(p graphql.ResolveParams) (interface{}, error) {
	account, ok := p.Source.(models.Account)
	if !ok {
		return nil, nil
	}
	posts, err := r.accounts.Posts(p.Context, account.User.ID)
	if err != nil {
		return nil, clientError(r.log, "posts", err)
	}
	return posts, nil
}

func (r *resolver) createUser(p graphql.ResolveParams) (interface{}, error) {
	info, ok := p.Args["info"].(map[string]interface{})
	if !ok {
		return nil, errMissingInfo
	}
	account, err := r.accounts.CreateUser(p.Context, services.CreateUserInput{
		Email:     str(info, "email"),
		Password:  str(info, "password"),
		FirstName: str(info, "firstName"),
		LastName:  strPtr(info, "lastName"),
	})
	if err != nil {
		return nil, clientError(r.log, "createUser", err)
	}
	return account, nil
}

func (r *resolver) login(p graphql.ResolveParams) (interface{}, error) {
	info, ok := p.Args["info"].(map[string]interface{})
	if !ok {
		return nil, errMissingInfo
	}
	logged, err := r.accounts.Login(p.Context, str(info, "email"), str(info, "password"))
	if err != nil {
		return nil, clientError(r.log, "login", err)
	}
	return logged, nil
}

func (r *resolver) updateUser(p graphql.ResolveParams) (interface{}, error) {
	caller, _ := CallerFromContext(p.Context)
	info, ok := p.Args["info"].(map[string]interface{})
	if !ok {
		return nil, errMissingInfo
	}
	in := services.UpdateUserInput{
		Email:     strPtr(info, "email"),
		FirstName: strPtr(info, "firstName"),
		LastName:  strPtr(info, "lastName"),
	}
	if upload, ok := info["profileImage"].(*services.Upload); ok && upload != nil {
		in.ProfileImage = upload
	}

	account, err := r.accounts.UpdateUser(p.Context, caller.User.ID.Hex(), in)
	if err != nil {
		return nil, clientError(r.log, "updateUser", err)
	}
	return account, nil
}

func (r *resolver) changePassword(p graphql.ResolveParams) (interface{}, error) {
	caller, _ := CallerFromContext(p.Context)
	info, ok := p.Args["info"].(map[string]interface{})
	if !ok {
		return nil, errMissingInfo
	}
	logged, err := r.accounts.ChangePassword(p.Context, caller.User.ID.Hex(), services.ChangePasswordInput{
		CurrentPassword: str(info, "currentPassword"),
		NewPassword:     str(info, "newPassword"),
		ConfirmPassword: str(info, "confirmPassword"),
	})
	if err != nil {
		return nil, clientError(r.log, "changePassword", err)
	}
	return logged, nil
}

func (r *resolver) forgetPassword(p graphql.ResolveParams) (interface{}, error) {
	ok, err := r.accounts.ForgetPassword(p.Context, str(p.Args, "email"))
	if err != nil {
		return nil, clientError(r.log, "forgetPassword", err)
	}
	return ok, nil
}

func (r *resolver) resetPassword(p graphql.ResolveParams) (interface{}, error) {
	msg, err := r.accounts.ResetPassword(p.Context, str(p.Args, "token"), str(p.Args, "password"))
	if err != nil {
		return nil, clientError(r.log, "resetPassword", err)
	}
	return msg, nil
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func strPtr(m map[string]interface{}, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &s
}
